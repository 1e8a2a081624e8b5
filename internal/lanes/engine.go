package lanes

import (
	"fmt"
	"log/slog"
	"sort"
)

// Options configures an Engine.
type Options struct {
	LaneMax int
	// LegacyPageIndex reports the 0-based page index when a target subject
	// selects the page, matching clients built against the old layout API.
	LegacyPageIndex bool
	Placer          Placer
	Logger          *slog.Logger
}

// Query narrows what Run places and returns.
type Query struct {
	Excluded []string
	Subject  string
	Page     int
}

// Engine packs one kind at a time. It holds configuration only; every Run
// builds its own pages and category registry, so an Engine is safe for
// concurrent use.
type Engine struct {
	laneMax int
	legacy  bool
	placer  Placer
	logger  *slog.Logger
}

// NewEngine builds an Engine, defaulting to BestFit placement.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "lane-engine")
	}
	placer := opts.Placer
	if placer == nil {
		placer = BestFit{Logger: logger}
	}
	laneMax := opts.LaneMax
	if laneMax <= 0 {
		laneMax = DefaultLaneMax
	}
	return &Engine{
		laneMax: laneMax,
		legacy:  opts.LegacyPageIndex,
		placer:  placer,
		logger:  logger,
	}
}

// Run packs candidates for kind. Candidates must already be sorted widest
// first. Every candidate's category is registered, including those whose
// category is excluded from placement.
func (e *Engine) Run(kind string, candidates []Subject, q Query) (KindResult, error) {
	excluded := make(map[string]struct{}, len(q.Excluded))
	for _, c := range q.Excluded {
		excluded[c] = struct{}{}
	}

	categories := make(map[string]struct{})
	ps := NewPageSet(e.laneMax)
	target := NoTarget
	placed := 0

	for _, s := range candidates {
		categories[s.Category] = struct{}{}
		if _, skip := excluded[s.Category]; skip {
			continue
		}
		page, err := e.placer.Place(ps, s)
		if err != nil {
			return KindResult{}, fmt.Errorf("kind %q: placing subject %q: %w", kind, s.ID, err)
		}
		placed++
		if q.Subject != "" && s.ID == q.Subject {
			target = page
		}
	}

	sel := Select(ps.Pages(), q.Page, target, e.legacy)

	e.logger.Debug("kind packed",
		"kind", kind,
		"candidates", len(candidates),
		"placed", placed,
		"pages", sel.Total,
		"target_page", target,
	)

	return KindResult{
		Categories: sortedKeys(categories),
		Pages:      sel.Pages,
		Page:       sel.Page,
		Count:      sel.Count,
		TotalPages: sel.Total,
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
