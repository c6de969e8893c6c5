package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusFound     Status = "found"
	StatusError     Status = "error"
)

const (
	DefaultPollInterval = time.Second
	DefaultHandoffDelay = 500 * time.Millisecond
)

var ErrClosed = errors.New("matchmaking closed")

// API is the REST surface the queue client drives.
type API interface {
	Authenticated() bool
	JoinQueue(ctx context.Context, gameName string) (types.QueueResponse, error)
	LeaveQueue(ctx context.Context, gameName string) (types.QueueResponse, error)
	CheckMatch(ctx context.Context) (types.MatchResponse, error)
}

type Options struct {
	GameName     string
	PollInterval time.Duration
	HandoffDelay time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger

	// OnAuthRequired runs on the loop goroutine when a search is requested
	// without a valid credential.
	OnAuthRequired func()
	// OnMatch runs on the loop goroutine once the handoff delay has passed.
	OnMatch func(types.MatchResponse)
}

type View struct {
	Status    Status
	Searching bool
	Loading   bool
	Error     string
	Match     *types.MatchResponse
}

type Msg interface{ isMatchmakingMsg() }

type StartSearch struct{}

type CancelSearch struct{}

// Reset returns to idle from any state and forgets the last match or error.
type Reset struct{}

type Subscribe struct {
	ClientID string
	Outbox   chan View
}

type Unsubscribe struct{ ClientID string }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type joined struct {
	gen  int
	resp types.QueueResponse
	err  error
}

type left struct {
	gen int
	err error
}

type polled struct {
	gen  int
	resp types.MatchResponse
	err  error
}

type handoff struct{ gen int }

func (StartSearch) isMatchmakingMsg()  {}
func (CancelSearch) isMatchmakingMsg() {}
func (Reset) isMatchmakingMsg()        {}
func (Subscribe) isMatchmakingMsg()    {}
func (Unsubscribe) isMatchmakingMsg()  {}
func (GetState) isMatchmakingMsg()     {}
func (Shutdown) isMatchmakingMsg()     {}
func (joined) isMatchmakingMsg()       {}
func (left) isMatchmakingMsg()         {}
func (polled) isMatchmakingMsg()       {}
func (handoff) isMatchmakingMsg()      {}

// Client runs the join → poll → found cycle that precedes a session.
type Client struct {
	inbox chan Msg
	api   API
	opts  Options
	log   *zap.Logger
	clock clockwork.Clock

	status  Status
	loading bool
	errMsg  string
	match   *types.MatchResponse
	clients map[string]chan View

	// reqGen invalidates join/leave results after Reset; pollGen invalidates
	// checks and the handoff once polling stops.
	reqGen   int
	pollGen  int
	checking bool
	ticker   clockwork.Ticker
	timer    clockwork.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func New(parent context.Context, api API, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HandoffDelay <= 0 {
		opts.HandoffDelay = DefaultHandoffDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnAuthRequired == nil {
		opts.OnAuthRequired = func() {}
	}
	if opts.OnMatch == nil {
		opts.OnMatch = func(types.MatchResponse) {}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		inbox:   make(chan Msg, 64),
		api:     api,
		opts:    opts,
		log:     opts.Logger.With(zap.String("game", opts.GameName)),
		clock:   opts.Clock,
		status:  StatusIdle,
		clients: make(map[string]chan View),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Client) Post(m Msg) bool { return c.post(m) }

func (c *Client) StartSearch() bool { return c.post(StartSearch{}) }

func (c *Client) CancelSearch() bool { return c.post(CancelSearch{}) }

func (c *Client) Reset() bool { return c.post(Reset{}) }

func (c *Client) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !c.post(GetState{Reply: reply}) {
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops polling and waits for the loop to exit. Results still in
// flight are discarded.
func (c *Client) Close() error {
	c.post(Shutdown{})
	c.cancel()
	<-c.done
	return nil
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) post(m Msg) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.Chan()
		}

		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case <-tick:
			c.check()

		case m := <-c.inbox:
			if _, ok := m.(Shutdown); ok {
				c.shutdown()
				return
			}
			c.handle(m)
		}
	}
}

func (c *Client) handle(m Msg) {
	switch msg := m.(type) {
	case StartSearch:
		if c.loading || c.status == StatusSearching {
			break
		}
		if !c.api.Authenticated() {
			c.log.Info("search needs a credential")
			c.opts.OnAuthRequired()
			break
		}
		c.loading = true
		c.errMsg = ""
		gen := c.reqGen
		go func() {
			resp, err := c.api.JoinQueue(c.ctx, c.opts.GameName)
			c.post(joined{gen: gen, resp: resp, err: err})
		}()
		c.publish()

	case joined:
		if msg.gen != c.reqGen {
			break
		}
		c.loading = false
		switch {
		case msg.err != nil:
			c.log.Warn("join failed", zap.Error(msg.err))
			c.setError("could not reach the matchmaking server")
		case msg.resp.Status == types.QueueWaiting || msg.resp.Status == types.QueueAlreadyWaiting:
			c.status = StatusSearching
			c.log.Info("searching", zap.String("queue_status", msg.resp.Status))
			c.startPolling()
		default:
			c.setError(fmt.Sprintf("unexpected queue status: %s", msg.resp.Status))
		}
		c.publish()

	case CancelSearch:
		if c.loading || c.status != StatusSearching {
			break
		}
		c.stopPolling()
		c.loading = true
		gen := c.reqGen
		go func() {
			_, err := c.api.LeaveQueue(c.ctx, c.opts.GameName)
			c.post(left{gen: gen, err: err})
		}()
		c.publish()

	case left:
		if msg.gen != c.reqGen {
			break
		}
		if msg.err != nil {
			c.log.Warn("leave failed", zap.Error(msg.err))
		}
		c.loading = false
		c.status = StatusIdle
		c.match = nil
		c.publish()

	case polled:
		if msg.gen != c.pollGen {
			break
		}
		c.checking = false
		if c.status != StatusSearching {
			break
		}
		if msg.err != nil {
			c.log.Warn("check match failed", zap.Error(msg.err))
			break
		}
		if msg.resp.Status != types.QueueMatchFound || msg.resp.GameID == "" {
			break
		}
		c.stopPolling()
		match := msg.resp
		c.status = StatusFound
		c.match = &match
		c.log.Info("match found", zap.String("game_id", match.GameID), zap.String("opponent_id", match.OpponentID))
		gen := c.pollGen
		c.timer = c.clock.AfterFunc(c.opts.HandoffDelay, func() {
			c.post(handoff{gen: gen})
		})
		c.publish()

	case handoff:
		if msg.gen != c.pollGen || c.status != StatusFound || c.match == nil {
			break
		}
		c.opts.OnMatch(*c.match)

	case Reset:
		c.stopPolling()
		c.reqGen++
		c.loading = false
		c.status = StatusIdle
		c.errMsg = ""
		c.match = nil
		c.publish()

	case Subscribe:
		c.clients[msg.ClientID] = msg.Outbox
		select {
		case msg.Outbox <- c.view():
		default:
			close(msg.Outbox)
			delete(c.clients, msg.ClientID)
		}

	case Unsubscribe:
		delete(c.clients, msg.ClientID)

	case GetState:
		msg.Reply <- c.view()
	}
}

func (c *Client) startPolling() {
	c.stopPolling()
	c.ticker = c.clock.NewTicker(c.opts.PollInterval)
	c.check()
}

// stopPolling also disarms a pending handoff, since both belong to the
// current poll generation.
func (c *Client) stopPolling() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pollGen++
	c.checking = false
}

func (c *Client) check() {
	if c.checking || c.status != StatusSearching {
		return
	}
	c.checking = true
	gen := c.pollGen
	go func() {
		resp, err := c.api.CheckMatch(c.ctx)
		c.post(polled{gen: gen, resp: resp, err: err})
	}()
}

func (c *Client) setError(reason string) {
	c.status = StatusError
	c.errMsg = reason
}

func (c *Client) view() View {
	v := View{
		Status:    c.status,
		Searching: c.status == StatusSearching,
		Loading:   c.loading,
		Error:     c.errMsg,
	}
	if c.match != nil {
		m := *c.match
		v.Match = &m
	}
	return v
}

func (c *Client) publish() {
	v := c.view()
	for id, ch := range c.clients {
		select {
		case ch <- v:
		default:
			close(ch)
			delete(c.clients, id)
		}
	}
}

func (c *Client) shutdown() {
	c.cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	for id, ch := range c.clients {
		close(ch)
		delete(c.clients, id)
	}
	c.log.Debug("matchmaking torn down")
}
