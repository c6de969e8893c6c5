package session

import (
	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/DoyleJ11/wordduel/internal/ws"
)

type Msg interface{ isSessionMsg() }

// Connect asks for a credential and opens the socket. It is a no-op while an
// attempt is pending, while connected, or once the session has ended.
type Connect struct{}

type PointerDown struct{ Point types.Point }

type PointerMove struct{ Point types.Point }

type PointerUp struct{}

type PointerLeave struct{}

// Abandon tells the server we quit. The local status only changes when the
// server answers with game_finished.
type Abandon struct{}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this subscriber wants to receive snapshots
}

type Unsubscribe struct{ ClientID string }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

// Results posted back by helper goroutines.
type tokenFetched struct {
	attempt int
	token   string
	err     error
}

type dialed struct {
	attempt int
	link    ws.Transport
	err     error
}

type frame struct {
	link ws.Transport
	data []byte
}

type linkClosed struct {
	link ws.Transport
	err  error
}

type readyDue struct{ gen int }

func (Connect) isSessionMsg()      {}
func (PointerDown) isSessionMsg()  {}
func (PointerMove) isSessionMsg()  {}
func (PointerUp) isSessionMsg()    {}
func (PointerLeave) isSessionMsg() {}
func (Abandon) isSessionMsg()      {}
func (Subscribe) isSessionMsg()    {}
func (Unsubscribe) isSessionMsg()  {}
func (GetState) isSessionMsg()     {}
func (Shutdown) isSessionMsg()     {}
func (tokenFetched) isSessionMsg() {}
func (dialed) isSessionMsg()       {}
func (frame) isSessionMsg()        {}
func (linkClosed) isSessionMsg()   {}
func (readyDue) isSessionMsg()     {}
