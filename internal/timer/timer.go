package timer

import (
	"context"
	"time"

	"github.com/DoyleJ11/wordduel/internal/engine"
	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 100 * time.Millisecond

// Reading is one display refresh of the game clock.
type Reading struct {
	Remaining time.Duration
	Clock     string
	TimeUp    bool
}

// Read derives the display value from the state's start anchor. ok is false
// while no game is running.
func Read(s engine.State, now time.Time) (Reading, bool) {
	if s.Status != engine.StatusInProgress {
		return Reading{}, false
	}
	left, ok := s.Remaining(now)
	if !ok {
		return Reading{}, false
	}
	return Reading{Remaining: left, Clock: engine.FormatClock(left), TimeUp: left <= 0}, true
}

// Watch recomputes the clock every interval and calls emit whenever the
// displayed value changes. Nothing is decremented; every reading comes from
// the start anchor, so a stalled ticker never drifts.
func Watch(ctx context.Context, clk clockwork.Clock, interval time.Duration, current func() engine.State, emit func(Reading)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			r, ok := Read(current(), clk.Now())
			if !ok {
				last = ""
				continue
			}
			if r.Clock != last {
				last = r.Clock
				emit(r)
			}
		}
	}
}
