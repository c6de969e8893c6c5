package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/wordduel/internal/draw"
	"github.com/DoyleJ11/wordduel/internal/engine"
	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/DoyleJ11/wordduel/internal/ws"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	SoundSuccess = "success"
	SoundWin     = "win"

	DefaultReadyDelay = 100 * time.Millisecond
)

var ErrClosed = errors.New("session closed")

// Credentials mints the single-use token the socket URL carries.
type Credentials interface {
	SessionToken(ctx context.Context) (string, error)
}

type Dialer interface {
	Dial(ctx context.Context, url string) (ws.Transport, error)
}

type Options struct {
	SessionID string
	GameKind  string
	Me        types.Player

	// WSBaseURL is the socket root; the session appends /<kind>/<id>.
	WSBaseURL   string
	Credentials Credentials
	Dialer      Dialer

	// Sound plays a cue; nil means silent.
	Sound func(kind string)

	ReadyDelay time.Duration
	Draw       draw.Options
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// Snapshot is an immutable copy of everything a renderer needs.
type Snapshot struct {
	Version   int
	State     engine.State
	Selection draw.View
	Strokes   []draw.Stroke
}

type View struct {
	Snapshot
	NumClients int
	Connecting bool
}

// Session owns one game session: its state, its socket and its selection
// controller. Everything is mutated on the loop goroutine only.
type Session struct {
	inbox chan Msg
	opts  Options
	log   *zap.Logger
	clock clockwork.Clock

	state   engine.State
	version int
	clients map[string]chan Snapshot
	draw    *draw.Controller

	link       ws.Transport
	connecting bool
	attempt    int
	readyGen   int
	readyTimer clockwork.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards closed so no helper can enqueue after teardown drains the inbox.
	mu     sync.Mutex
	closed bool
}

func New(parent context.Context, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = DefaultReadyDelay
	}
	if opts.Sound == nil {
		opts.Sound = func(string) {}
	}
	if opts.Dialer == nil {
		opts.Dialer = ws.Dialer{Logger: opts.Logger}
	}

	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger.With(
		zap.String("session_id", opts.SessionID),
		zap.String("instance", uuid.NewString()),
	)

	s := &Session{
		inbox:   make(chan Msg, 64),
		opts:    opts,
		log:     log,
		clock:   opts.Clock,
		state:   engine.NewState(opts.SessionID, opts.GameKind, opts.Me),
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	drawOpts := opts.Draw
	drawOpts.Clock = opts.Clock
	drawOpts.Logger = log
	s.draw = draw.New(draw.SenderFunc(s.send), drawOpts)

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.opts.SessionID }

// Post queues a message for the loop. It reports false once the session has
// been torn down.
func (s *Session) Post(m Msg) bool { return s.post(m) }

func (s *Session) Connect() bool { return s.post(Connect{}) }

// State asks the loop for its current view.
func (s *Session) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !s.post(GetState{Reply: reply}) {
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close tears the session down and waits for the loop to exit.
func (s *Session) Close() error {
	s.post(Shutdown{})
	s.cancel()
	<-s.done
	return nil
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) post(m Msg) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			if _, ok := m.(Shutdown); ok {
				s.shutdown()
				return
			}
			s.handle(m)
		}
	}
}

func (s *Session) handle(m Msg) {
	switch msg := m.(type) {
	case Connect:
		s.connect()

	case tokenFetched:
		if msg.attempt != s.attempt || !s.connecting {
			break
		}
		if msg.err != nil {
			s.connecting = false
			s.fail(fmt.Sprintf("credential fetch failed: %v", msg.err))
			break
		}
		url, err := ws.URL(s.opts.WSBaseURL, s.opts.GameKind, s.opts.SessionID, msg.token)
		if err != nil {
			s.connecting = false
			s.fail(err.Error())
			break
		}
		go s.dial(msg.attempt, url)

	case dialed:
		s.adopt(msg)

	case frame:
		if msg.link != s.link {
			break
		}
		s.onFrame(msg.data)

	case linkClosed:
		if msg.link != s.link {
			break
		}
		// The reader is done; Close stops the writer and releases the conn.
		_ = msg.link.Close("connection ended")
		s.link = nil
		events, next := engine.Detach(s.state)
		s.state = next
		if !ws.IsNormalClosure(msg.err) && !s.state.Status.Terminal() {
			// A local close here is the link giving up after a failed write.
			s.log.Warn("connection lost", zap.Error(msg.err), zap.Bool("local", ws.IsLocalClose(msg.err)))
			failEvents, failed, _ := engine.Fail(s.state, "connection lost")
			s.state = failed
			events = append(events, failEvents...)
		} else {
			s.log.Info("connection closed", zap.Error(msg.err))
		}
		s.react(events)
		s.publish()

	case readyDue:
		if msg.gen != s.readyGen || s.state.Status.Terminal() {
			break
		}
		s.send(types.PlayerReady{})

	case PointerDown:
		if !s.acceptsInput() {
			break
		}
		if s.draw.PointerDown(s.state, msg.Point) {
			s.publish()
		}

	case PointerMove:
		if s.draw.PointerMove(s.state, msg.Point) {
			s.publish()
		}

	case PointerUp:
		if s.draw.Dragging() {
			s.draw.PointerUp(s.state)
			s.publish()
		}

	case PointerLeave:
		if s.draw.Dragging() {
			s.draw.PointerLeave(s.state)
			s.publish()
		}

	case Abandon:
		if s.state.Status.Terminal() {
			break
		}
		s.send(types.Abandon{})

	case Subscribe:
		// Register subscriber + send current snapshot immediately
		s.clients[msg.ClientID] = msg.Outbox
		select {
		case msg.Outbox <- s.snapshot():
		default:
			close(msg.Outbox)
			delete(s.clients, msg.ClientID)
		}

	case Unsubscribe:
		delete(s.clients, msg.ClientID)

	case GetState:
		// reflect internal state without data races
		msg.Reply <- View{
			Snapshot:   s.snapshot(),
			NumClients: len(s.clients),
			Connecting: s.connecting,
		}
	}
}

func (s *Session) connect() {
	switch {
	case s.state.Status.Terminal():
		s.log.Debug("connect ignored, session ended", zap.String("status", string(s.state.Status)))
		return
	case s.connecting:
		s.log.Debug("connect ignored, attempt in flight")
		return
	case s.link != nil:
		s.log.Debug("connect ignored, already connected")
		return
	}

	s.connecting = true
	s.attempt++
	attempt := s.attempt
	creds := s.opts.Credentials
	if creds == nil {
		s.connecting = false
		s.fail("no credential source")
		return
	}
	go func() {
		token, err := creds.SessionToken(s.ctx)
		s.post(tokenFetched{attempt: attempt, token: token, err: err})
	}()
}

func (s *Session) dial(attempt int, url string) {
	link, err := s.opts.Dialer.Dial(s.ctx, url)
	if !s.post(dialed{attempt: attempt, link: link, err: err}) && link != nil {
		_ = link.Close("session closed")
	}
}

func (s *Session) adopt(msg dialed) {
	if msg.attempt != s.attempt || !s.connecting {
		if msg.link != nil {
			_ = msg.link.Close("stale connection")
		}
		return
	}
	s.connecting = false

	if msg.err != nil {
		s.log.Warn("dial failed", zap.Error(msg.err))
		s.fail("connection failed")
		return
	}
	if s.state.Status.Terminal() {
		_ = msg.link.Close("session ended")
		return
	}

	s.link = msg.link
	events, next := engine.Attach(s.state)
	s.state = next
	s.log.Info("connected")
	go s.read(msg.link)
	s.react(events)
	s.publish()
}

// read uses its own context so teardown ends the socket through Close, which
// sends a normal-closure frame, rather than by cancelling a pending read.
func (s *Session) read(link ws.Transport) {
	err := link.ReadLoop(context.Background(), func(data []byte) {
		s.post(frame{link: link, data: data})
	})
	s.post(linkClosed{link: link, err: err})
}

func (s *Session) onFrame(data []byte) {
	in, err := types.Decode(data)
	if err != nil {
		s.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch m := in.(type) {
	case types.SelectionUpdate:
		s.draw.PeerSelection(s.state, m)
		s.publish()
		return
	case types.SelectionReset:
		s.draw.PeerReset()
		s.publish()
		return
	}

	events, next, err := engine.Apply(s.state, in, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUnknownMessage):
			s.log.Debug("ignoring message", zap.String("type", in.Kind()))
		case errors.Is(err, engine.ErrSessionTerminal):
			s.log.Debug("session ended, ignoring message", zap.String("type", in.Kind()))
		default:
			s.log.Warn("apply failed", zap.String("type", in.Kind()), zap.Error(err))
		}
		return
	}

	s.state = next
	s.react(events)
	s.publish()
}

func (s *Session) react(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtStatusChanged:
			s.log.Info("status changed", zap.String("status", string(ev.Status)), zap.String("detail", ev.Detail))
		case engine.EvtReadyRequested:
			s.armReady()
		case engine.EvtWordConfirmed:
			if ev.Solution != nil {
				s.log.Info("word found", zap.String("word", ev.Solution.Word), zap.String("player_id", ev.PlayerID))
			}
			s.opts.Sound(SoundSuccess)
		case engine.EvtGameFinished:
			s.log.Info("game finished", zap.String("result", string(ev.Result)), zap.String("reason", ev.Detail))
			if ev.Result.Won() {
				s.opts.Sound(SoundWin)
			}
		case engine.EvtInformational:
			s.log.Info(ev.Detail, zap.String("player_id", ev.PlayerID))
		}
	}
}

func (s *Session) armReady() {
	if s.readyTimer != nil {
		s.readyTimer.Stop()
	}
	s.readyGen++
	gen := s.readyGen
	s.readyTimer = s.clock.AfterFunc(s.opts.ReadyDelay, func() {
		s.post(readyDue{gen: gen})
	})
}

func (s *Session) acceptsInput() bool {
	return s.state.Status == engine.StatusInProgress
}

// send writes through whatever link is current. With no link the command is
// dropped; that is expected while disconnected.
func (s *Session) send(msg types.Outbound) bool {
	if s.link == nil {
		s.log.Debug("send dropped, not connected", zap.String("type", msg.Kind()))
		return false
	}
	data, err := types.Encode(msg)
	if err != nil {
		s.log.Warn("encode failed", zap.String("type", msg.Kind()), zap.Error(err))
		return false
	}
	if !s.link.Send(data) {
		s.log.Debug("send dropped", zap.String("type", msg.Kind()))
		return false
	}
	return true
}

func (s *Session) fail(reason string) {
	events, next, err := engine.Fail(s.state, reason)
	if err != nil {
		return
	}
	s.state = next
	s.react(events)
	s.publish()
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Version:   s.version,
		State:     s.state,
		Selection: s.draw.View(),
		Strokes:   s.draw.Layers(s.state),
	}
}

func (s *Session) publish() {
	s.version++
	s.broadcast(s.snapshot())
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.readyTimer != nil {
		s.readyTimer.Stop()
	}
	if s.link != nil {
		_ = s.link.Close("session closed")
		s.link = nil
	}
	// A dial may have landed after the loop stopped reading.
	for drained := false; !drained; {
		select {
		case m := <-s.inbox:
			if d, ok := m.(dialed); ok && d.link != nil {
				_ = d.link.Close("session closed")
			}
		default:
			drained = true
		}
	}

	if events, next, err := engine.Cancel(s.state); err == nil {
		s.state = next
		s.react(events)
		s.publish()
	}
	for id, ch := range s.clients {
		close(ch) // no more snapshots
		delete(s.clients, id)
	}
	s.log.Debug("session torn down")
}
