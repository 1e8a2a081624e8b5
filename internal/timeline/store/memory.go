package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
)

// Memory keeps subjects in a map. It orders candidates the same way as
// Postgres.
type Memory struct {
	mu       sync.RWMutex
	subjects map[string]lanes.Subject
}

// NewMemory returns a store seeded with subjects.
func NewMemory(subjects ...lanes.Subject) *Memory {
	m := &Memory{subjects: make(map[string]lanes.Subject, len(subjects))}
	for _, s := range subjects {
		m.subjects[s.ID] = s
	}
	return m
}

func (m *Memory) Kinds(ctx context.Context) ([]string, error) {
	return m.distinct(func(s lanes.Subject) string { return s.Kind }), nil
}

func (m *Memory) Categories(ctx context.Context) ([]string, error) {
	return m.distinct(func(s lanes.Subject) string { return s.Category }), nil
}

func (m *Memory) distinct(field func(lanes.Subject) string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, s := range m.subjects {
		seen[field(s)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Candidates(ctx context.Context, kind string, from, to float64) ([]lanes.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]lanes.Subject, 0)
	for _, s := range m.subjects {
		if s.Kind == kind && s.From <= to && s.To >= from {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	lanes.SortCandidates(out)
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, subjects ...lanes.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subjects {
		m.subjects[s.ID] = s
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.subjects, id)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
