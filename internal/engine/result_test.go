package engine

import (
	"testing"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name                          string
		reason, winner, abandon, self string
		want                          Result
	}{
		{"no winner is a draw", "time_up", "", "", "me", ResultDraw},
		{"no winner beats abandon", ReasonAbandon, "", "me", "me", ResultDraw},
		{"I abandoned", ReasonAbandon, "op", "me", "me", ResultLose},
		{"opponent abandoned", ReasonAbandon, "me", "op", "me", ResultAbandonWin},
		{"plain win", "time_up", "me", "", "me", ResultWin},
		{"plain loss", "all_words_found", "op", "", "me", ResultLose},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.reason, tc.winner, tc.abandon, tc.self); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStateResult_DrawRegardlessOfScores(t *testing.T) {
	s := newPlayingState()
	msg := types.GameFinished{Reason: "time_up", FinalScores: map[string]int{"me": 10, "op": 1}}
	events, s, err := Apply(s, msg, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, ok := s.Result()
	if !ok || got != ResultDraw {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if events[len(events)-1].Result != ResultDraw {
		t.Fatalf("GameFinished event carries %q", events[len(events)-1].Result)
	}
	if s.Me.Score != 10 {
		t.Fatalf("final score not applied: %d", s.Me.Score)
	}
}

func TestStateResult_SelfAbandonLoses(t *testing.T) {
	s := newPlayingState()
	_, s, _ = Apply(s, types.GameFinished{Reason: ReasonAbandon, WinnerID: "op", AbandonPlayerID: "me"}, now)
	if got, _ := s.Result(); got != ResultLose {
		t.Fatalf("got %q", got)
	}
}

func TestRemainingAndFormat(t *testing.T) {
	start := now
	if got := Remaining(start, time.Minute, start.Add(20*time.Second)); got != 40*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := Remaining(start, time.Minute, start.Add(2*time.Minute)); got != 0 {
		t.Fatalf("expired timer must floor at 0, got %v", got)
	}

	cases := map[time.Duration]string{
		0:                       "00:00",
		300 * time.Millisecond:  "00:01",
		59*time.Second + 1:      "01:00",
		125 * time.Second:       "02:05",
		-3 * time.Second:        "00:00",
	}
	for d, want := range cases {
		if got := FormatClock(d); got != want {
			t.Fatalf("FormatClock(%v): got %q, want %q", d, got, want)
		}
	}

	s := newPlayingState()
	if _, ok := s.Remaining(now); ok {
		t.Fatalf("no anchor yet")
	}
	s.StartedAt = now
	if left, ok := s.Remaining(now.Add(time.Second)); !ok || left != DefaultDuration-time.Second {
		t.Fatalf("got %v ok=%v", left, ok)
	}
}
