package benchmark

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/cache"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/service"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/store"
)

var kinds = []string{"Event", "Person", "Dynasty", "Structure"}

func generateSubjects(n int) []lanes.Subject {
	rng := rand.New(rand.NewPCG(42, 7))
	out := make([]lanes.Subject, n)
	for i := range out {
		from := float64(rng.IntN(5000) - 3000)
		out[i] = lanes.Subject{
			ID:       fmt.Sprintf("s-%d", i),
			Kind:     kinds[i%len(kinds)],
			Category: fmt.Sprintf("cat-%d", rng.IntN(8)),
			From:     from,
			To:       from + float64(rng.IntN(400)),
		}
	}
	return out
}

// BenchmarkEngineRun measures packing a single kind for growing candidate
// sets.
func BenchmarkEngineRun(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("subjects_%d", n), func(b *testing.B) {
			candidates := generateSubjects(n)
			lanes.SortCandidates(candidates)
			engine := lanes.NewEngine(lanes.Options{})
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Run("Event", candidates, lanes.Query{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineLaneMax shows how page capacity changes packing cost.
func BenchmarkEngineLaneMax(b *testing.B) {
	candidates := generateSubjects(2000)
	lanes.SortCandidates(candidates)
	for _, laneMax := range []int{5, 15, 50} {
		b.Run(fmt.Sprintf("lane_max_%d", laneMax), func(b *testing.B) {
			engine := lanes.NewEngine(lanes.Options{LaneMax: laneMax})
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Run("Event", candidates, lanes.Query{Page: 1}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkOverlaps measures the overlap test against lanes of varying
// length.
func BenchmarkOverlaps(b *testing.B) {
	for _, size := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("lane_%d", size), func(b *testing.B) {
			lane := make(lanes.Lane, size)
			for i := range lane {
				lane[i] = lanes.Subject{From: float64(i * 100), To: float64(i*100 + 50)}
			}
			candidate := lanes.Subject{From: float64(size * 100), To: float64(size*100 + 10)}
			for i := 0; i < b.N; i++ {
				lanes.Overlaps(lane, candidate)
			}
		})
	}
}

// BenchmarkServiceLayout measures the full request path over the in-memory
// store, all kinds at once.
func BenchmarkServiceLayout(b *testing.B) {
	svc := service.New(
		store.NewMemory(generateSubjects(4000)...),
		lanes.NewEngine(lanes.Options{}),
		service.Options{FetchConcurrency: 4},
		nil,
	)
	req := timeline.LayoutRequest{From: -3000, To: 2100, Excluded: []string{"cat-3"}}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Layout(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCacheKey(b *testing.B) {
	req := timeline.LayoutRequest{
		From:     -1000,
		To:       500,
		Kind:     "Event",
		Page:     2,
		Excluded: []string{"war", "plague", "reign"},
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		cache.Key(req)
	}
}
