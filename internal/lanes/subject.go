// Package lanes packs time-bounded subjects into non-overlapping lanes,
// groups lanes into capacity-bounded pages, and selects which pages a
// caller receives. It performs no I/O: callers hand it candidates that are
// already filtered by time range and kind.
package lanes

import (
	"cmp"
	"slices"
)

// DefaultLaneMax is the number of lanes a page may hold before a new lane
// has to go on a fresh page.
const DefaultLaneMax = 15

// Subject is a time-bounded entity rendered as one bar.
type Subject struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name,omitempty" yaml:"name"`
	Kind     string  `json:"kind,omitempty" yaml:"kind"`
	Category string  `json:"category" yaml:"category"`
	From     float64 `json:"from" yaml:"from"`
	To       float64 `json:"to" yaml:"to"`
}

// Span returns the width of the subject's range.
func (s Subject) Span() float64 {
	return s.To - s.From
}

// Lane is a row of subjects in insertion order.
type Lane []Subject

// Page is an ordered group of lanes.
type Page []Lane

// KindResult is the packed layout for one kind.
type KindResult struct {
	Categories []string `json:"categories"`
	Pages      []Page   `json:"pages"`
	Page       int      `json:"page"`
	Count      int      `json:"count"`
	TotalPages int      `json:"totalPages"`
}

// KindResults maps a kind name to its layout.
type KindResults map[string]KindResult

// SortCandidates orders subjects widest first. Equal spans keep their input
// order.
func SortCandidates(subjects []Subject) {
	slices.SortStableFunc(subjects, func(a, b Subject) int {
		return cmp.Compare(b.Span(), a.Span())
	})
}
