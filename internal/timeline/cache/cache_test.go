package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	// stale makes the next n gets report a miss regardless of data.
	stale int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.stale > 0 {
		f.stale--
		return nil, pkgredis.Nil
	}
	v, ok := f.data[key]
	if !ok {
		return nil, pkgredis.Nil
	}
	return v, nil
}

func (f *fakeBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.([]byte)
	return nil
}

func (f *fakeBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResults() lanes.KindResults {
	return lanes.KindResults{
		"Event": {
			Categories: []string{"war"},
			Pages:      []lanes.Page{{{{ID: "A", Category: "war", From: -1000, To: -800}}}},
			Page:       1,
			Count:      1,
			TotalPages: 1,
		},
	}
}

func TestKeyIsStableAcrossExcludedOrder(t *testing.T) {
	a := timeline.LayoutRequest{From: -10, To: 10, Excluded: []string{"b", "a"}}
	b := timeline.LayoutRequest{From: -10, To: 10, Excluded: []string{"a", "b", "a"}}
	if Key(a) != Key(b) {
		t.Error("equivalent requests should share a key")
	}
	if !strings.HasPrefix(Key(a), keyPrefix) {
		t.Errorf("key %q lacks prefix", Key(a))
	}
	c := timeline.LayoutRequest{From: -10, To: 11, Excluded: []string{"a", "b"}}
	if Key(a) == Key(c) {
		t.Error("different ranges should not share a key")
	}
}

func TestGetOrCompute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := New(newFakeBackend(), time.Minute, m)
	ctx := context.Background()
	req := timeline.LayoutRequest{From: -3000, To: 2100, Kind: "Event"}

	calls := 0
	compute := func(context.Context) (lanes.KindResults, error) {
		calls++
		return sampleResults(), nil
	}

	got, hit, err := c.GetOrCompute(ctx, req, compute)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	if got["Event"].Pages[0][0][0].ID != "A" {
		t.Errorf("unexpected result %+v", got)
	}

	got, hit, err = c.GetOrCompute(ctx, req, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	if got["Event"].TotalPages != 1 {
		t.Errorf("cached result lost fields: %+v", got["Event"])
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d, want 1/1", hits, misses)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), timeline.LayoutRequest{}, func(context.Context) (lanes.KindResults, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get(context.Background(), timeline.LayoutRequest{}); ok {
		t.Error("failed computation must not be cached")
	}
}

func TestBackendErrorIsAMiss(t *testing.T) {
	b := newFakeBackend()
	b.getErr = errors.New("connection refused")
	c := New(b, time.Minute, nil)
	if _, ok := c.Get(context.Background(), timeline.LayoutRequest{}); ok {
		t.Error("expected miss")
	}
	if _, misses := c.Stats(); misses != 1 {
		t.Errorf("misses = %d", misses)
	}
}

func TestConcurrentMissesShareComputation(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, nil)
	req := timeline.LayoutRequest{Kind: "Event"}
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (lanes.KindResults, error) {
		calls.Add(1)
		<-release
		return sampleResults(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), req, compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 5 {
		t.Errorf("compute calls = %d", n)
	}
	if _, ok := c.Get(context.Background(), req); !ok {
		t.Error("result should be cached")
	}
}

func TestAbandonedCallerDoesNotFailSharedComputation(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, nil)
	req := timeline.LayoutRequest{Kind: "Event"}
	started := make(chan struct{})
	release := make(chan struct{})
	var computeErr atomic.Value
	compute := func(ctx context.Context) (lanes.KindResults, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			computeErr.Store(err)
			return nil, err
		}
		return sampleResults(), nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(firstCtx, req, compute)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(context.Background(), req, compute)
		secondDone <- err
	}()
	time.Sleep(10 * time.Millisecond)

	cancelFirst()
	if err := <-firstDone; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller err = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-secondDone; err != nil {
		t.Fatalf("second caller err = %v", err)
	}
	if v := computeErr.Load(); v != nil {
		t.Errorf("shared computation saw %v", v)
	}
	if _, ok := c.Get(context.Background(), req); !ok {
		t.Error("result should be cached")
	}
}

func TestComputeRechecksCacheInsideFlight(t *testing.T) {
	b := newFakeBackend()
	c := New(b, time.Minute, nil)
	req := timeline.LayoutRequest{Kind: "Event"}
	c.Set(context.Background(), req, sampleResults())
	b.stale = 1

	got, hit, err := c.GetOrCompute(context.Background(), req, func(context.Context) (lanes.KindResults, error) {
		t.Error("compute should not run when another flight already cached the layout")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("outer lookup missed, so the call should not report a hit")
	}
	if got["Event"].Count != 1 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestInvalidate(t *testing.T) {
	b := newFakeBackend()
	b.data["other:1"] = []byte("x")
	c := New(b, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, timeline.LayoutRequest{Kind: "Event"}, sampleResults())
	c.Set(ctx, timeline.LayoutRequest{Kind: "Person"}, sampleResults())

	n, err := c.Invalidate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d keys, want 2", n)
	}
	if _, ok := b.data["other:1"]; !ok {
		t.Error("non-layout key was removed")
	}
}
