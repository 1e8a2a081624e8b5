// Package timeline holds the request types shared by the layout service,
// its HTTP handler, cache and store.
package timeline

import (
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
)

// LayoutRequest asks for the lane layout of one kind (or every kind when
// Kind is empty) within [From, To].
type LayoutRequest struct {
	From     float64  `json:"from"`
	To       float64  `json:"to"`
	Kind     string   `json:"kind,omitempty"`
	Page     int      `json:"page,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Excluded []string `json:"excluded,omitempty"`
}

// Query returns the engine query for the request.
func (r LayoutRequest) Query() lanes.Query {
	return lanes.Query{
		Excluded: r.Excluded,
		Subject:  r.Subject,
		Page:     r.Page,
	}
}

// Normalized renders the request canonically: excluded categories are
// de-duplicated and sorted, so equivalent requests share a cache key.
func (r LayoutRequest) Normalized() string {
	excluded := slices.Clone(r.Excluded)
	slices.Sort(excluded)
	excluded = slices.Compact(excluded)

	parts := []string{
		"from=" + strconv.FormatFloat(r.From, 'g', -1, 64),
		"to=" + strconv.FormatFloat(r.To, 'g', -1, 64),
		"kind=" + strconv.Quote(r.Kind),
		"page=" + strconv.Itoa(r.Page),
		"subject=" + strconv.Quote(r.Subject),
		"excluded=" + strconv.Quote(strings.Join(excluded, "\x1f")),
	}
	return strings.Join(parts, "|")
}
