package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingType = errors.New("frame has no type")

// Server -> client
const (
	MsgReconnected        = "reconnected"
	MsgWaitingForOpponent = "waiting_for_opponent"
	MsgWaitingForPlayers  = "waiting_for_players"
	MsgPlayerJoined       = "player_joined"
	MsgPrepareGame        = "prepare_game"
	MsgOpponentReady      = "opponent_ready"
	MsgCountdown          = "countdown"
	MsgStartingCountdown  = "starting_countdown"
	MsgGameStart          = "game_start"
	MsgWordFound          = "word_found"
	MsgWordFoundSuccess   = "word_found_success"
	MsgScoreUpdate        = "score_update"
	MsgGameFinished       = "game_finished"
	MsgReset              = "reset"
)

// Both directions
const (
	MsgSelectionUpdate = "selection_update"
	MsgSelectionReset  = "selection_reset"
)

// Client -> server
const (
	MsgPlayerReady     = "player_ready"
	MsgSubmitSelection = "submit_selection"
	MsgAbandon         = "abandon"
)

// Envelope is the part every frame shares.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound is the closed set of server frames. Frames with a type the client
// does not know decode to Unknown.
type Inbound interface {
	Kind() string
	isInbound()
}

type Reconnected struct {
	GameData       *GameData `json:"game_data"`
	Opponent       Opponent  `json:"opponent"`
	StartTimestamp *float64  `json:"start_timestamp"`
	Status         string    `json:"status"`
}

// Waiting covers waiting_for_opponent and waiting_for_players.
type Waiting struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type PlayerJoined struct {
	PlayerID string `json:"player_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

type PrepareGame struct {
	GameData *GameData `json:"game_data"`
	Opponent Opponent  `json:"opponent"`
}

type OpponentReady struct {
	PlayerID string `json:"player_id,omitempty"`
}

// Countdown covers countdown and starting_countdown. Older servers put the
// remaining seconds in "countdown", newer ones in "seconds".
type Countdown struct {
	Type      string `json:"type"`
	Seconds   *int   `json:"seconds,omitempty"`
	Countdown *int   `json:"countdown,omitempty"`
}

func (c Countdown) Remaining() int {
	switch {
	case c.Seconds != nil:
		return *c.Seconds
	case c.Countdown != nil:
		return *c.Countdown
	}
	return 0
}

type GameStart struct {
	StartTimestamp  *float64 `json:"start_timestamp"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
}

type WordFound struct {
	PlayerID    string        `json:"player_id,omitempty"`
	FoundBy     string        `json:"found_by,omitempty"`
	NewScore    *int          `json:"new_score,omitempty"`
	NewSolution *WordSolution `json:"new_solution,omitempty"`
}

// Player is the id of the player who found the word.
func (w WordFound) Player() string {
	if w.FoundBy != "" {
		return w.FoundBy
	}
	return w.PlayerID
}

type ScoreUpdate struct {
	PlayerID string         `json:"player_id,omitempty"`
	NewScore *int           `json:"new_score,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
}

type GameFinished struct {
	Reason          string         `json:"reason"`
	WinnerID        string         `json:"winner_id"`
	IsDraw          bool           `json:"is_draw,omitempty"`
	FinalScores     map[string]int `json:"final_scores,omitempty"`
	Scores          map[string]int `json:"scores,omitempty"`
	AbandonPlayerID string         `json:"abandon_player_id,omitempty"`
	Message         string         `json:"message,omitempty"`
}

// Final returns the per-player scores, which older servers send as scores.
func (g GameFinished) Final() map[string]int {
	if g.FinalScores != nil {
		return g.FinalScores
	}
	return g.Scores
}

// SelectionUpdate is the live drag preview. The peer's updates arrive with
// the same shape the client sends.
type SelectionUpdate struct {
	Position *Position `json:"position"`
	Color    string    `json:"color,omitempty"`
}

// SelectionReset covers selection_reset and reset.
type SelectionReset struct{}

type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Reconnected) Kind() string     { return MsgReconnected }
func (w Waiting) Kind() string       { return w.Type }
func (PlayerJoined) Kind() string    { return MsgPlayerJoined }
func (PrepareGame) Kind() string     { return MsgPrepareGame }
func (OpponentReady) Kind() string   { return MsgOpponentReady }
func (c Countdown) Kind() string     { return c.Type }
func (GameStart) Kind() string       { return MsgGameStart }
func (WordFound) Kind() string       { return MsgWordFound }
func (ScoreUpdate) Kind() string     { return MsgScoreUpdate }
func (GameFinished) Kind() string    { return MsgGameFinished }
func (SelectionUpdate) Kind() string { return MsgSelectionUpdate }
func (SelectionReset) Kind() string  { return MsgSelectionReset }
func (u Unknown) Kind() string       { return u.Type }

func (Reconnected) isInbound()     {}
func (Waiting) isInbound()         {}
func (PlayerJoined) isInbound()    {}
func (PrepareGame) isInbound()     {}
func (OpponentReady) isInbound()   {}
func (Countdown) isInbound()       {}
func (GameStart) isInbound()       {}
func (WordFound) isInbound()       {}
func (ScoreUpdate) isInbound()     {}
func (GameFinished) isInbound()    {}
func (SelectionUpdate) isInbound() {}
func (SelectionReset) isInbound()  {}
func (Unknown) isInbound()         {}

// Decode parses one frame. Malformed JSON and frames without a type are
// errors; an unrecognised type is not.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch env.Type {
	case MsgReconnected:
		return decodeAs[Reconnected](env.Type, data)
	case MsgWaitingForOpponent, MsgWaitingForPlayers:
		return decodeAs[Waiting](env.Type, data)
	case MsgPlayerJoined:
		return decodeAs[PlayerJoined](env.Type, data)
	case MsgPrepareGame:
		return decodeAs[PrepareGame](env.Type, data)
	case MsgOpponentReady:
		return decodeAs[OpponentReady](env.Type, data)
	case MsgCountdown, MsgStartingCountdown:
		return decodeAs[Countdown](env.Type, data)
	case MsgGameStart:
		return decodeAs[GameStart](env.Type, data)
	case MsgWordFound, MsgWordFoundSuccess:
		return decodeAs[WordFound](env.Type, data)
	case MsgScoreUpdate:
		return decodeAs[ScoreUpdate](env.Type, data)
	case MsgGameFinished:
		return decodeAs[GameFinished](env.Type, data)
	case MsgSelectionUpdate:
		return decodeAs[SelectionUpdate](env.Type, data)
	case MsgSelectionReset, MsgReset:
		return SelectionReset{}, nil
	default:
		return Unknown{Type: env.Type, Raw: json.RawMessage(data)}, nil
	}
}

func decodeAs[T Inbound](typ string, data []byte) (Inbound, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", typ, err)
	}
	return m, nil
}
