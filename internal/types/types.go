package types

import (
	"encoding/json"
	"math"
	"time"
)

// Point is a pixel coordinate on the drawing surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position is a drag from StartPoint to EndPoint, in surface pixels.
type Position struct {
	StartPoint Point `json:"start_point"`
	EndPoint   Point `json:"end_point"`
}

type GridIndex struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type GridLine struct {
	StartIndex GridIndex `json:"start_index"`
	EndIndex   GridIndex `json:"end_index"`
}

// WordSolution is a server-confirmed find. FoundBy is filled in by the client
// from the word_found envelope when the solution itself does not carry it.
type WordSolution struct {
	Word       string    `json:"word"`
	StartIndex GridIndex `json:"start_index"`
	EndIndex   GridIndex `json:"end_index"`
	FoundBy    string    `json:"found_by,omitempty"`
}

func (w WordSolution) Line() GridLine {
	return GridLine{StartIndex: w.StartIndex, EndIndex: w.EndIndex}
}

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Opponent accepts the shapes the server uses for the opponent field: a full
// player object, a bare player id, or null.
type Opponent struct {
	Player *Player
}

func (o *Opponent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.Player = nil
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if id == "" {
			o.Player = nil
			return nil
		}
		o.Player = &Player{ID: id}
		return nil
	}
	var p Player
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	o.Player = &p
	return nil
}

func (o Opponent) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Player)
}

// GameData is the game-kind payload delivered by prepare_game and reconnected.
type GameData struct {
	Grid          [][]string                `json:"grid_data"`
	WordsToFind   []string                  `json:"words_to_find,omitempty"`
	Theme         string                    `json:"theme,omitempty"`
	WordsFound    map[string][]WordSolution `json:"words_found,omitempty"`
	RealtimeScore map[string]int            `json:"realtime_score,omitempty"`
	GameDuration  int                       `json:"game_duration,omitempty"`
}

// ScoreOf returns the authoritative score for playerID, or 0.
func (g *GameData) ScoreOf(playerID string) int {
	if g == nil || g.RealtimeScore == nil {
		return 0
	}
	return g.RealtimeScore[playerID]
}

// UnixSeconds converts a server timestamp (fractional seconds since the epoch).
func UnixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// ------------------------------------------------------------------
// REST payloads

type SessionToken struct {
	WSToken   string `json:"ws_token"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

const (
	QueueWaiting        = "waiting"
	QueueAlreadyWaiting = "already_waiting"
	QueueLeft           = "left"
	QueueNotInQueue     = "not_in_queue"
	QueueMatchFound     = "match_found"
)

type QueueRequest struct {
	GameName string `json:"game_name"`
}

type QueueResponse struct {
	Status   string `json:"status"`
	PlayerID string `json:"player_id,omitempty"`
}

type MatchResponse struct {
	Status     string `json:"status"`
	GameID     string `json:"game_id,omitempty"`
	GameName   string `json:"game_name,omitempty"`
	OpponentID string `json:"opponent_id,omitempty"`
}
