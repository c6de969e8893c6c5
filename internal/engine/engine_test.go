package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func f64p(v float64) *float64 { return &v }

func newPlayingState() State {
	s := NewState("g1", "wordsearch", types.Player{ID: "me", Username: "alice"})
	s.Status = StatusInProgress
	s.Opponent = &types.Player{ID: "op", Username: "bob"}
	s.Game = &types.GameData{
		Grid:          [][]string{{"C", "A", "T"}, {"D", "O", "G"}, {"X", "Y", "Z"}},
		WordsFound:    map[string][]types.WordSolution{},
		RealtimeScore: map[string]int{},
	}
	return s
}

func containsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func TestApply_StatusTransitions(t *testing.T) {
	cases := []struct {
		name string
		msg  types.Inbound
		want Status
	}{
		{"waiting for opponent", types.Waiting{Type: types.MsgWaitingForOpponent}, StatusWaitingForOpponent},
		{"waiting for players", types.Waiting{Type: types.MsgWaitingForPlayers}, StatusWaitingForPlayers},
		{"prepare", types.PrepareGame{GameData: &types.GameData{Grid: [][]string{{"A"}}}}, StatusPreparing},
		{"countdown", types.Countdown{Type: types.MsgCountdown, Seconds: intp(3)}, StatusStartingCountdown},
		{"game start", types.GameStart{StartTimestamp: f64p(1700000000)}, StatusInProgress},
		{"finished", types.GameFinished{Reason: "time_up", WinnerID: "me"}, StatusFinished},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState("g1", "wordsearch", types.Player{ID: "me"})
			events, next, err := Apply(s, tc.msg, now)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if next.Status != tc.want {
				t.Fatalf("status: got %q, want %q", next.Status, tc.want)
			}
			if !containsEvent(events, EvtStatusChanged) {
				t.Fatalf("expected EvtStatusChanged")
			}
			if s.Status != StatusConnecting {
				t.Fatalf("input state was mutated")
			}
		})
	}
}

func TestApply_PrepareGameRequestsReady(t *testing.T) {
	s := NewState("g1", "wordsearch", types.Player{ID: "me"})
	msg := types.PrepareGame{
		GameData: &types.GameData{Grid: [][]string{{"A", "B"}}, GameDuration: 120},
		Opponent: types.Opponent{Player: &types.Player{ID: "op", Username: "bob"}},
	}

	events, next, err := Apply(s, msg, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !containsEvent(events, EvtReadyRequested) {
		t.Fatalf("expected EvtReadyRequested")
	}
	if next.Opponent == nil || next.Opponent.Username != "bob" {
		t.Fatalf("opponent not stored: %+v", next.Opponent)
	}
	if next.Duration != 120*time.Second {
		t.Fatalf("duration: got %v", next.Duration)
	}
	msg.GameData.Grid[0][0] = "Z"
	if next.Letters()[0][0] != "A" {
		t.Fatalf("game payload aliases the message")
	}
}

func TestApply_CountdownThenStartClearsCountdown(t *testing.T) {
	s := NewState("g1", "wordsearch", types.Player{ID: "me"})
	_, s, _ = Apply(s, types.Countdown{Type: types.MsgStartingCountdown, Countdown: intp(5)}, now)
	if s.Countdown == nil || *s.Countdown != 5 {
		t.Fatalf("countdown not stored: %v", s.Countdown)
	}

	_, s, err := Apply(s, types.GameStart{DurationSeconds: intp(90)}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Countdown != nil {
		t.Fatalf("countdown should be cleared")
	}
	if !s.StartedAt.Equal(now) {
		t.Fatalf("missing server timestamp should anchor to now, got %v", s.StartedAt)
	}
	if s.Duration != 90*time.Second {
		t.Fatalf("duration: got %v", s.Duration)
	}
}

func TestApply_ReconnectedRestoresSnapshot(t *testing.T) {
	s := NewState("g1", "wordsearch", types.Player{ID: "me"})
	msg := types.Reconnected{
		GameData: &types.GameData{
			Grid:          [][]string{{"A"}},
			RealtimeScore: map[string]int{"me": 7, "op": 4},
		},
		Opponent:       types.Opponent{Player: &types.Player{ID: "op", Username: "bob"}},
		StartTimestamp: f64p(1700000000),
		Status:         string(StatusInProgress),
	}

	_, next, err := Apply(s, msg, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if next.Status != StatusInProgress {
		t.Fatalf("status: got %q", next.Status)
	}
	if next.Me.Score != 7 || next.Opponent.Score != 4 {
		t.Fatalf("scores: me=%d op=%d", next.Me.Score, next.Opponent.Score)
	}
	if !next.StartedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("start: got %v", next.StartedAt)
	}
}

func TestApply_ReconnectedWithoutOpponent(t *testing.T) {
	s := NewState("g1", "wordsearch", types.Player{ID: "me"})
	_, next, err := Apply(s, types.Reconnected{Status: string(StatusWaitingForOpponent)}, now)
	if err != nil {
		t.Fatalf("opponent-less reconnection should be valid, got %v", err)
	}
	if next.Opponent != nil || next.Status != StatusWaitingForOpponent {
		t.Fatalf("got opponent=%v status=%q", next.Opponent, next.Status)
	}
}

func TestApply_WordFoundAppendsAndTakesServerScore(t *testing.T) {
	s := newPlayingState()
	msg := types.WordFound{
		FoundBy:  "op",
		NewScore: intp(3),
		NewSolution: &types.WordSolution{
			Word:       "dog",
			StartIndex: types.GridIndex{Row: 1, Col: 0},
			EndIndex:   types.GridIndex{Row: 1, Col: 2},
		},
	}

	events, next, err := Apply(s, msg, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !containsEvent(events, EvtWordConfirmed) || !containsEvent(events, EvtScoreChanged) {
		t.Fatalf("missing events: %+v", events)
	}
	if next.Opponent.Score != 3 || next.Me.Score != 0 {
		t.Fatalf("scores: me=%d op=%d", next.Me.Score, next.Opponent.Score)
	}
	if !next.IsFound("DOG") {
		t.Fatalf("expected DOG to be confirmed")
	}
	if s.IsFound("DOG") {
		t.Fatalf("previous state observed the append")
	}
	sols := next.Solutions()
	if len(sols) != 1 || sols[0].FoundBy != "op" {
		t.Fatalf("solutions: %+v", sols)
	}

	// The same word confirmed again never duplicates.
	_, again, err := Apply(next, msg, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(again.Solutions()) != 1 {
		t.Fatalf("duplicate word appended: %+v", again.Solutions())
	}
}

func TestApply_ScoreUpdateForms(t *testing.T) {
	s := newPlayingState()
	_, s, _ = Apply(s, types.ScoreUpdate{PlayerID: "me", NewScore: intp(5)}, now)
	_, s, _ = Apply(s, types.ScoreUpdate{Scores: map[string]int{"op": 2}}, now)
	if s.Me.Score != 5 || s.Opponent.Score != 2 {
		t.Fatalf("scores: me=%d op=%d", s.Me.Score, s.Opponent.Score)
	}
	if s.Game.ScoreOf("me") != 5 {
		t.Fatalf("payload score not mirrored")
	}
}

func TestApply_GameFinishedScoreKeys(t *testing.T) {
	cases := []struct {
		name string
		msg  types.GameFinished
	}{
		{"final_scores", types.GameFinished{Reason: "time_up", WinnerID: "me", FinalScores: map[string]int{"me": 7, "op": 3}}},
		{"scores", types.GameFinished{Reason: "time_up", WinnerID: "me", Scores: map[string]int{"me": 7, "op": 3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, s, err := Apply(newPlayingState(), tc.msg, now)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if s.Me.Score != 7 || s.Opponent.Score != 3 {
				t.Fatalf("scores: me=%d op=%d", s.Me.Score, s.Opponent.Score)
			}
			if s.Finished == nil || s.Finished.FinalScores["op"] != 3 {
				t.Fatalf("final scores not recorded: %+v", s.Finished)
			}
		})
	}
}

func TestApply_TerminalRejectsFurtherMessages(t *testing.T) {
	s := newPlayingState()
	_, s, err := Apply(s, types.GameFinished{Reason: "time_up", WinnerID: "me"}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, next, err := Apply(s, types.ScoreUpdate{PlayerID: "me", NewScore: intp(99)}, now)
	if !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("want ErrSessionTerminal, got %v", err)
	}
	if next.Me.Score == 99 {
		t.Fatalf("terminal state mutated")
	}
}

func TestApply_SelectionAndUnknownAreNotTransitions(t *testing.T) {
	s := newPlayingState()
	if _, _, err := Apply(s, types.SelectionReset{}, now); !errors.Is(err, ErrUnhandledMessage) {
		t.Fatalf("want ErrUnhandledMessage, got %v", err)
	}
	if _, _, err := Apply(s, types.Unknown{Type: "chat"}, now); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("want ErrUnknownMessage, got %v", err)
	}
}

func TestFailAndCancel(t *testing.T) {
	s := newPlayingState()
	_, failed, err := Fail(s, "connection lost")
	if err != nil || failed.Status != StatusError || failed.Err != "connection lost" {
		t.Fatalf("fail: %+v err=%v", failed, err)
	}
	if _, _, err := Cancel(failed); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("error state must be terminal, got %v", err)
	}

	_, cancelled, err := Cancel(s)
	if err != nil || cancelled.Status != StatusCancelled {
		t.Fatalf("cancel: %+v err=%v", cancelled, err)
	}
}

func TestAttachDetach(t *testing.T) {
	s := newPlayingState()
	events, s := Attach(s)
	if !s.Connected || !containsEvent(events, EvtConnected) {
		t.Fatalf("attach: %+v", events)
	}
	events, s = Attach(s)
	if len(events) != 0 {
		t.Fatalf("second attach should be a no-op")
	}
	_, s = Detach(s)
	if s.Connected || s.Status != StatusInProgress {
		t.Fatalf("detach must keep status: %+v", s)
	}
}
