package lanes

import (
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
)

// ErrLaneInvariant signals that the allocator's own bookkeeping is
// inconsistent. It is never retried and maps to an internal error.
var ErrLaneInvariant = fmt.Errorf("%w: lane allocation invariant violated", apperrors.ErrInternal)

// Placer assigns a subject to a lane in ps and returns the page index it
// landed on.
type Placer interface {
	Place(ps *PageSet, s Subject) (int, error)
}

// slot identifies a lane that could take the candidate.
type slot struct {
	page int
	lane int
	size int
}

// BestFit places each subject in the fullest lane it does not overlap,
// scanning every page. Ties go to the first lane found in page/lane order.
// When no lane fits, a new lane is opened on the page chosen by
// PageSet.PageForNewLane.
type BestFit struct {
	Logger *slog.Logger
}

func (b BestFit) Place(ps *PageSet, s Subject) (int, error) {
	var eligible []slot
	for pi, page := range ps.pages {
		for li, lane := range page {
			if !Overlaps(lane, s) {
				eligible = append(eligible, slot{page: pi, lane: li, size: len(lane)})
			}
		}
	}

	if len(eligible) == 0 {
		page := ps.PageForNewLane()
		lane, err := ps.AddLane(page, s)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLaneInvariant, err)
		}
		b.logger().Debug("opened lane",
			"subject_id", s.ID,
			"page", page,
			"lane", lane,
		)
		return page, nil
	}

	best := -1
	for i, c := range eligible {
		if best < 0 || c.size > eligible[best].size {
			best = i
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: %d eligible lanes for subject %q but none selected", ErrLaneInvariant, len(eligible), s.ID)
	}

	target := eligible[best]
	if err := ps.Append(target.page, target.lane, s); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLaneInvariant, err)
	}
	return target.page, nil
}

func (b BestFit) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
