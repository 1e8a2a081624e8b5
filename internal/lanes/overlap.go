package lanes

import "math"

// bufferRatio scales a candidate's magnitude into the padding added around
// it before overlap testing.
const bufferRatio = 0.01

// Buffer returns the padding applied to s when s is the candidate being
// placed. Only the candidate's own magnitude is used, never the occupant's.
func Buffer(s Subject) float64 {
	return math.Abs(bufferRatio * math.Max(math.Abs(s.From), math.Abs(s.To)))
}

// Overlaps reports whether the buffered range of candidate conflicts with
// any subject already in lane. The test is asymmetric: swapping occupant
// and candidate can change the answer because the buffer follows the
// candidate.
func Overlaps(lane Lane, candidate Subject) bool {
	buf := Buffer(candidate)
	lo := candidate.From - buf
	hi := candidate.To + buf
	for _, s := range lane {
		switch {
		case hi > s.From && lo <= s.To:
			return true
		case lo >= s.From && lo < s.To:
			return true
		case lo <= s.From && hi >= s.To:
			return true
		}
	}
	return false
}
