package lanes

import "fmt"

// PageSet owns the pages built for one kind. Its capacity bounds how many
// lanes may be created on a page; it never limits how many subjects an
// existing lane absorbs.
type PageSet struct {
	pages   []Page
	laneMax int
}

// NewPageSet returns an empty PageSet. A non-positive laneMax falls back to
// DefaultLaneMax.
func NewPageSet(laneMax int) *PageSet {
	if laneMax <= 0 {
		laneMax = DefaultLaneMax
	}
	return &PageSet{laneMax: laneMax}
}

// LaneMax returns the per-page lane creation bound.
func (ps *PageSet) LaneMax() int {
	return ps.laneMax
}

// Len returns the number of pages.
func (ps *PageSet) Len() int {
	return len(ps.pages)
}

// Pages returns the pages in creation order. The slice is shared with the
// PageSet.
func (ps *PageSet) Pages() []Page {
	return ps.pages
}

// PageForNewLane returns the index of the page that should receive a new
// lane. The last page with spare lane capacity wins; when none has room a
// new empty page is appended.
func (ps *PageSet) PageForNewLane() int {
	idx := -1
	for i, p := range ps.pages {
		if len(p) < ps.laneMax {
			idx = i
		}
	}
	if idx >= 0 {
		return idx
	}
	ps.pages = append(ps.pages, Page{})
	return len(ps.pages) - 1
}

// AddLane creates a lane on page holding only s and returns its lane index.
func (ps *PageSet) AddLane(page int, s Subject) (int, error) {
	if page < 0 || page >= len(ps.pages) {
		return 0, fmt.Errorf("adding lane: page %d out of range [0,%d)", page, len(ps.pages))
	}
	ps.pages[page] = append(ps.pages[page], Lane{s})
	return len(ps.pages[page]) - 1, nil
}

// Append adds s to the end of an existing lane.
func (ps *PageSet) Append(page, lane int, s Subject) error {
	if page < 0 || page >= len(ps.pages) {
		return fmt.Errorf("appending subject %q: page %d out of range [0,%d)", s.ID, page, len(ps.pages))
	}
	if lane < 0 || lane >= len(ps.pages[page]) {
		return fmt.Errorf("appending subject %q: lane %d out of range on page %d", s.ID, lane, page)
	}
	ps.pages[page][lane] = append(ps.pages[page][lane], s)
	return nil
}
