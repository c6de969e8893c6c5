package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/jinzhu/copier"
)

var ErrSessionTerminal = errors.New("session already ended")
var ErrUnhandledMessage = errors.New("message is not a session transition")
var ErrUnknownMessage = errors.New("unknown message type")

type EventType string

const (
	EvtStatusChanged  EventType = "StatusChanged"
	EvtScoreChanged   EventType = "ScoreChanged"
	EvtWordConfirmed  EventType = "WordConfirmed"
	EvtReadyRequested EventType = "ReadyRequested"
	EvtGameFinished   EventType = "GameFinished"
	EvtInformational  EventType = "Informational"
	EvtConnected      EventType = "Connected"
	EvtDisconnected   EventType = "Disconnected"
)

/*
	reconnected          -> StatusChanged, ScoreChanged (me, opponent)
	waiting_for_*        -> StatusChanged
	prepare_game         -> StatusChanged, ReadyRequested (caller sends player_ready after a short delay)
	countdown            -> StatusChanged
	game_start           -> StatusChanged
	word_found           -> WordConfirmed, ScoreChanged
	score_update         -> ScoreChanged
	game_finished        -> ScoreChanged..., StatusChanged, GameFinished
	player_joined,
	opponent_ready       -> Informational
*/

type Event struct {
	Type     EventType
	Status   Status
	PlayerID string
	Score    int
	Solution *types.WordSolution
	Result   Result
	Detail   string
}

// Apply folds one server message into the session. Scores only ever come
// from the server; nothing here derives a score locally.
func Apply(s State, msg types.Inbound, now time.Time) ([]Event, State, error) {
	if s.Status.Terminal() {
		return nil, s, ErrSessionTerminal
	}

	next := s

	switch m := msg.(type) {
	case types.Reconnected:
		game, err := cloneGame(m.GameData)
		if err != nil {
			return nil, s, err
		}
		next.Game = game
		next.Opponent = copyPlayer(m.Opponent.Player)
		if m.StartTimestamp != nil {
			next.StartedAt = types.UnixSeconds(*m.StartTimestamp)
		}
		if game != nil && game.GameDuration > 0 {
			next.Duration = time.Duration(game.GameDuration) * time.Second
		}
		if st, ok := ParseStatus(m.Status); ok {
			next.Status = st
		}

		events := []Event{{Type: EvtStatusChanged, Status: next.Status}}
		next.Me.Score = game.ScoreOf(next.Me.ID)
		events = append(events, Event{Type: EvtScoreChanged, PlayerID: next.Me.ID, Score: next.Me.Score})
		if next.Opponent != nil && next.Opponent.ID != "" {
			next.Opponent.Score = game.ScoreOf(next.Opponent.ID)
			events = append(events, Event{Type: EvtScoreChanged, PlayerID: next.Opponent.ID, Score: next.Opponent.Score})
		}
		return events, next, nil

	case types.Waiting:
		if m.Type == types.MsgWaitingForPlayers {
			next.Status = StatusWaitingForPlayers
		} else {
			next.Status = StatusWaitingForOpponent
		}
		return []Event{{Type: EvtStatusChanged, Status: next.Status}}, next, nil

	case types.PlayerJoined:
		return []Event{{Type: EvtInformational, PlayerID: m.PlayerID, Detail: types.MsgPlayerJoined}}, s, nil

	case types.OpponentReady:
		return []Event{{Type: EvtInformational, PlayerID: m.PlayerID, Detail: types.MsgOpponentReady}}, s, nil

	case types.PrepareGame:
		game, err := cloneGame(m.GameData)
		if err != nil {
			return nil, s, err
		}
		next.Status = StatusPreparing
		next.Game = game
		if m.Opponent.Player != nil {
			next.Opponent = copyPlayer(m.Opponent.Player)
		}
		if game != nil && game.GameDuration > 0 {
			next.Duration = time.Duration(game.GameDuration) * time.Second
		}
		return []Event{
			{Type: EvtStatusChanged, Status: next.Status},
			{Type: EvtReadyRequested},
		}, next, nil

	case types.Countdown:
		remaining := m.Remaining()
		next.Status = StatusStartingCountdown
		next.Countdown = &remaining
		return []Event{{Type: EvtStatusChanged, Status: next.Status}}, next, nil

	case types.GameStart:
		next.Status = StatusInProgress
		next.Countdown = nil
		switch {
		case m.StartTimestamp != nil:
			next.StartedAt = types.UnixSeconds(*m.StartTimestamp)
		case next.StartedAt.IsZero():
			next.StartedAt = now
		}
		if m.DurationSeconds != nil && *m.DurationSeconds > 0 {
			next.Duration = time.Duration(*m.DurationSeconds) * time.Second
		}
		return []Event{{Type: EvtStatusChanged, Status: next.Status}}, next, nil

	case types.WordFound:
		player := m.Player()
		events := []Event{{Type: EvtWordConfirmed, PlayerID: player}}

		if m.NewSolution != nil {
			sol := *m.NewSolution
			if sol.FoundBy == "" {
				sol.FoundBy = player
			}
			events[0].Solution = &sol
			if !s.IsFound(sol.Word) {
				game, err := cloneGame(next.Game)
				if err != nil {
					return nil, s, err
				}
				if game == nil {
					game = &types.GameData{}
				}
				if game.WordsFound == nil {
					game.WordsFound = map[string][]types.WordSolution{}
				}
				game.WordsFound[sol.FoundBy] = append(game.WordsFound[sol.FoundBy], sol)
				next.Game = game
			}
		}

		if m.NewScore != nil && player != "" {
			var err error
			next, err = setScore(next, player, *m.NewScore)
			if err != nil {
				return nil, s, err
			}
			events = append(events, Event{Type: EvtScoreChanged, PlayerID: player, Score: *m.NewScore})
		}
		return events, next, nil

	case types.ScoreUpdate:
		var events []Event
		scores := map[string]int{}
		for id, v := range m.Scores {
			scores[id] = v
		}
		if m.PlayerID != "" && m.NewScore != nil {
			scores[m.PlayerID] = *m.NewScore
		}
		for _, id := range sortedKeys(scores) {
			var err error
			next, err = setScore(next, id, scores[id])
			if err != nil {
				return nil, s, err
			}
			events = append(events, Event{Type: EvtScoreChanged, PlayerID: id, Score: scores[id]})
		}
		return events, next, nil

	case types.GameFinished:
		var events []Event
		final := m.Final()
		for _, id := range sortedKeys(final) {
			var err error
			next, err = setScore(next, id, final[id])
			if err != nil {
				return nil, s, err
			}
			events = append(events, Event{Type: EvtScoreChanged, PlayerID: id, Score: final[id]})
		}
		fin := m
		fin.FinalScores = copyScores(final)
		fin.Scores = nil
		next.Finished = &fin
		next.Status = StatusFinished
		result := Classify(fin.Reason, fin.WinnerID, fin.AbandonPlayerID, next.Me.ID)
		events = append(events,
			Event{Type: EvtStatusChanged, Status: next.Status},
			Event{Type: EvtGameFinished, Result: result, Detail: fin.Reason},
		)
		return events, next, nil

	case types.SelectionUpdate, types.SelectionReset:
		return nil, s, ErrUnhandledMessage

	default:
		return nil, s, fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Kind())
	}
}

// Attach registers a live connection.
func Attach(s State) ([]Event, State) {
	if s.Connected {
		return nil, s
	}
	s.Connected = true
	return []Event{{Type: EvtConnected}}, s
}

// Detach drops the live connection and leaves the status alone.
func Detach(s State) ([]Event, State) {
	if !s.Connected {
		return nil, s
	}
	s.Connected = false
	return []Event{{Type: EvtDisconnected}}, s
}

// Fail moves a live session to StatusError, keeping reason for display.
func Fail(s State, reason string) ([]Event, State, error) {
	if s.Status.Terminal() {
		return nil, s, ErrSessionTerminal
	}
	s.Status = StatusError
	s.Err = reason
	return []Event{{Type: EvtStatusChanged, Status: s.Status, Detail: reason}}, s, nil
}

// Cancel moves a live session to StatusCancelled.
func Cancel(s State) ([]Event, State, error) {
	if s.Status.Terminal() {
		return nil, s, ErrSessionTerminal
	}
	s.Status = StatusCancelled
	return []Event{{Type: EvtStatusChanged, Status: s.Status}}, s, nil
}

func setScore(s State, playerID string, score int) (State, error) {
	switch {
	case playerID == s.Me.ID:
		s.Me.Score = score
	case s.Opponent != nil && (s.Opponent.ID == playerID || s.Opponent.ID == ""):
		op := *s.Opponent
		op.Score = score
		s.Opponent = &op
	}

	if s.Game != nil {
		game, err := cloneGame(s.Game)
		if err != nil {
			return s, err
		}
		if game.RealtimeScore == nil {
			game.RealtimeScore = map[string]int{}
		}
		game.RealtimeScore[playerID] = score
		s.Game = game
	}
	return s, nil
}

// cloneGame deep-copies the payload so earlier snapshots never observe a mutation.
func cloneGame(g *types.GameData) (*types.GameData, error) {
	if g == nil {
		return nil, nil
	}
	var out types.GameData
	if err := copier.CopyWithOption(&out, g, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy game data: %w", err)
	}
	return &out, nil
}

func copyPlayer(p *types.Player) *types.Player {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func copyScores(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
