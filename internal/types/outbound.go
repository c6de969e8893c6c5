package types

import (
	"encoding/json"
	"fmt"
)

// Outbound is the closed set of client commands.
type Outbound interface {
	Kind() string
	isOutbound()
}

type PlayerReady struct{}

type SubmitSelection struct {
	Solution WordSolution `json:"solution"`
}

type Abandon struct{}

func (PlayerReady) Kind() string     { return MsgPlayerReady }
func (SubmitSelection) Kind() string { return MsgSubmitSelection }
func (Abandon) Kind() string         { return MsgAbandon }

func (PlayerReady) isOutbound()     {}
func (SubmitSelection) isOutbound() {}
func (Abandon) isOutbound()         {}
func (SelectionUpdate) isOutbound() {}
func (SelectionReset) isOutbound()  {}

// Encode serialises a command as a single {type, ...} frame.
func Encode(m Outbound) ([]byte, error) {
	var v any
	switch msg := m.(type) {
	case PlayerReady, Abandon, SelectionReset:
		v = Envelope{Type: msg.Kind()}
	case SelectionUpdate:
		v = struct {
			Type string `json:"type"`
			SelectionUpdate
		}{msg.Kind(), msg}
	case SubmitSelection:
		v = struct {
			Type string `json:"type"`
			SubmitSelection
		}{msg.Kind(), msg}
	default:
		return nil, fmt.Errorf("encode: unsupported command %T", m)
	}
	return json.Marshal(v)
}
