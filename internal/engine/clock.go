package engine

import (
	"fmt"
	"math"
	"time"
)

// Remaining is recomputed from the start anchor every time rather than
// decremented, so a suspended process catches up on its next read.
func Remaining(start time.Time, d time.Duration, now time.Time) time.Duration {
	left := d - now.Sub(start)
	if left < 0 {
		return 0
	}
	return left
}

// Remaining is false until the game has a start anchor.
func (s State) Remaining(now time.Time) (time.Duration, bool) {
	if s.StartedAt.IsZero() {
		return 0, false
	}
	return Remaining(s.StartedAt, s.Duration, now), true
}

// FormatClock renders whole seconds, rounded up, as MM:SS.
func FormatClock(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
