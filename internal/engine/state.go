package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
)

type Status string

const (
	StatusConnecting         Status = "connecting"
	StatusWaitingForOpponent Status = "waiting_for_opponent"
	StatusWaitingForPlayers  Status = "waiting_for_players"
	StatusPreparing          Status = "preparing"
	StatusStartingCountdown  Status = "starting_countdown"
	StatusInProgress         Status = "game_in_progress"
	StatusFinished           Status = "finished"
	StatusCancelled          Status = "cancelled"
	StatusError              Status = "error"
)

// DefaultDuration applies when neither game_start nor the payload says how long the game runs.
const DefaultDuration = 300 * time.Second

func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusError:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, bool) {
	switch st := Status(raw); st {
	case StatusConnecting, StatusWaitingForOpponent, StatusWaitingForPlayers, StatusPreparing,
		StatusStartingCountdown, StatusInProgress, StatusFinished, StatusCancelled, StatusError:
		return st, true
	}
	return "", false
}

// State is the session as currently known from the server. Values are never
// mutated in place once published; Apply and friends return a fresh copy.
type State struct {
	SessionID string
	GameKind  string
	Status    Status

	Me       types.Player
	Opponent *types.Player

	StartedAt time.Time
	Duration  time.Duration
	Countdown *int

	Game     *types.GameData
	Finished *types.GameFinished

	// Connected is true while a live connection is registered for the session.
	Connected bool
	Err       string
}

func NewState(sessionID, gameKind string, me types.Player) State {
	return State{
		SessionID: sessionID,
		GameKind:  gameKind,
		Status:    StatusConnecting,
		Me:        me,
		Duration:  DefaultDuration,
	}
}

func (s State) LocalPlayerID() string { return s.Me.ID }

// Letters is the grid, or nil before the payload arrives.
func (s State) Letters() [][]string {
	if s.Game == nil {
		return nil
	}
	return s.Game.Grid
}

// Solutions flattens the confirmed finds: local player first, then the
// opponent, then anyone else by id. Order within a player is discovery order.
func (s State) Solutions() []types.WordSolution {
	if s.Game == nil || len(s.Game.WordsFound) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.Game.WordsFound))
	for id := range s.Game.WordsFound {
		ids = append(ids, id)
	}
	rank := func(id string) int {
		switch {
		case id == s.Me.ID:
			return 0
		case s.Opponent != nil && id == s.Opponent.ID:
			return 1
		}
		return 2
	}
	sort.Slice(ids, func(i, j int) bool {
		if ri, rj := rank(ids[i]), rank(ids[j]); ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})

	var out []types.WordSolution
	for _, id := range ids {
		for _, sol := range s.Game.WordsFound[id] {
			if sol.FoundBy == "" {
				sol.FoundBy = id
			}
			out = append(out, sol)
		}
	}
	return out
}

// IsFound compares case-insensitively against every confirmed word.
func (s State) IsFound(word string) bool {
	if s.Game == nil {
		return false
	}
	for _, sols := range s.Game.WordsFound {
		for _, sol := range sols {
			if strings.EqualFold(sol.Word, word) {
				return true
			}
		}
	}
	return false
}
