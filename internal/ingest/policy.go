package ingest

// DefaultThreshold is the number of submissions between promotions.
const DefaultThreshold = 120

// Advance applies one submission to a controller's counter.
//
// An absent counter starts at 1. A counter below threshold is incremented.
// A counter at or above threshold resets to 0 and the submission is
// promoted. The counter therefore always equals the number of submissions
// since the last promotion and never exceeds threshold.
func Advance(counter int, exists bool, threshold int) (next int, promote bool) {
	switch {
	case !exists:
		return 1, false
	case counter < threshold:
		return counter + 1, false
	default:
		return 0, true
	}
}
