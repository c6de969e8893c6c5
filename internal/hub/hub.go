package hub

import (
	"context"

	"github.com/DoyleJ11/wordduel/internal/session"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// MountSession returns the live session for Opts.SessionID, creating and
// connecting one if none is mounted. A second mount never opens a second socket.
type MountSession struct {
	Opts  session.Options
	Reply chan *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

// UnmountSession tears the session down and forgets it.
type UnmountSession struct {
	ID    string
	Reply chan error // optional
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan error // optional
}

func (MountSession) isHubMsg()   {}
func (GetSession) isHubMsg()     {}
func (UnmountSession) isHubMsg() {}
func (ListSessions) isHubMsg()   {}
func (ShutdownHub) isHubMsg()    {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// Mount is the blocking form of MountSession. It returns nil once the hub
// has shut down.
func (h *Hub) Mount(opts session.Options) *session.Session {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- MountSession{Opts: opts, Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-h.done:
		return nil
	}
}

func (h *Hub) Unmount(id string) error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- UnmountSession{ID: id, Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return nil
	}
}

// Shutdown closes every mounted session and stops the hub.
func (h *Hub) Shutdown() error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case err := <-reply:
		<-h.done
		return err
	case <-h.done:
		return nil
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			if err := h.closeAll(); err != nil {
				h.log.Warn("closing sessions", zap.Error(err))
			}
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case MountSession:
				id := msg.Opts.SessionID
				if s := h.sessions[id]; s != nil && !isDone(s) {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Opts)
				h.sessions[id] = s
				s.Connect()
				h.log.Info("session mounted", zap.String("session_id", id))
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case UnmountSession:
				var err error
				if s := h.sessions[msg.ID]; s != nil {
					err = s.Close()
					delete(h.sessions, msg.ID)
					h.log.Info("session unmounted", zap.String("session_id", msg.ID))
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case ShutdownHub:
				err := h.closeAll()
				if msg.Reply != nil {
					msg.Reply <- err
				}
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) closeAll() error {
	var err error
	for id, s := range h.sessions {
		err = multierr.Append(err, s.Close())
		delete(h.sessions, id)
	}
	return err
}

func isDone(s *session.Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}
