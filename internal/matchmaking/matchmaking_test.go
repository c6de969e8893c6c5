package matchmaking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	authed atomic.Bool

	joinGate chan struct{}
	joinResp types.QueueResponse
	joinErr  error
	joins    atomic.Int32
	leaves   atomic.Int32
	checks   atomic.Int32

	mu    sync.Mutex
	match types.MatchResponse
	err   error
}

func newFakeAPI() *fakeAPI {
	api := &fakeAPI{joinResp: types.QueueResponse{Status: types.QueueWaiting}}
	api.authed.Store(true)
	api.match = types.MatchResponse{Status: types.QueueWaiting}
	return api
}

func (a *fakeAPI) Authenticated() bool { return a.authed.Load() }

func (a *fakeAPI) JoinQueue(ctx context.Context, game string) (types.QueueResponse, error) {
	a.joins.Add(1)
	if a.joinGate != nil {
		select {
		case <-a.joinGate:
		case <-ctx.Done():
			return types.QueueResponse{}, ctx.Err()
		}
	}
	return a.joinResp, a.joinErr
}

func (a *fakeAPI) LeaveQueue(ctx context.Context, game string) (types.QueueResponse, error) {
	a.leaves.Add(1)
	return types.QueueResponse{Status: types.QueueLeft}, nil
}

func (a *fakeAPI) CheckMatch(ctx context.Context) (types.MatchResponse, error) {
	a.checks.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.match, a.err
}

func (a *fakeAPI) setMatch(m types.MatchResponse, err error) {
	a.mu.Lock()
	a.match, a.err = m, err
	a.mu.Unlock()
}

// Far longer than the poll interval so polling never overshoots the handoff.
const handoffDelay = time.Minute

type harness struct {
	c       *Client
	api     *fakeAPI
	clock   *clockwork.FakeClock
	matches chan types.MatchResponse
	auth    atomic.Int32
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{api: api, clock: clockwork.NewFakeClock(), matches: make(chan types.MatchResponse, 4)}
	h.c = New(context.Background(), api, Options{
		GameName:       "wordsearch",
		Clock:          h.clock,
		HandoffDelay:   handoffDelay,
		OnAuthRequired: func() { h.auth.Add(1) },
		OnMatch:        func(m types.MatchResponse) { h.matches <- m },
	})
	t.Cleanup(func() { _ = h.c.Close() })
	return h
}

func (h *harness) view(t *testing.T) View {
	t.Helper()
	v, err := h.c.State(context.Background())
	require.NoError(t, err)
	return v
}

func (h *harness) waitStatus(t *testing.T, want Status) View {
	t.Helper()
	var v View
	require.Eventually(t, func() bool {
		v = h.view(t)
		return v.Status == want
	}, time.Second, 5*time.Millisecond, "status %s", want)
	return v
}

// advanceUntil keeps ticking the fake clock until cond holds.
func (h *harness) advanceUntil(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.clock.Advance(d)
		return cond()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartSearch_TwiceJoinsOnce(t *testing.T) {
	api := newFakeAPI()
	api.joinGate = make(chan struct{})
	h := newHarness(t, api)

	h.c.StartSearch()
	h.c.StartSearch()
	require.Eventually(t, func() bool { return h.view(t).Loading }, time.Second, 5*time.Millisecond)
	close(api.joinGate)

	h.waitStatus(t, StatusSearching)
	h.c.StartSearch()
	_ = h.view(t)
	assert.EqualValues(t, 1, api.joins.Load())
}

func TestStartSearch_RequiresCredential(t *testing.T) {
	api := newFakeAPI()
	api.authed.Store(false)
	h := newHarness(t, api)

	h.c.StartSearch()
	v := h.view(t)
	assert.Equal(t, StatusIdle, v.Status)
	assert.EqualValues(t, 1, h.auth.Load())
	assert.Zero(t, api.joins.Load())
}

func TestStartSearch_Failures(t *testing.T) {
	cases := []struct {
		name string
		resp types.QueueResponse
		err  error
		want string
	}{
		{"transport failure", types.QueueResponse{}, errors.New("connection refused"), "could not reach"},
		{"unexpected status", types.QueueResponse{Status: "banned"}, nil, "unexpected queue status: banned"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI()
			api.joinResp, api.joinErr = tc.resp, tc.err
			h := newHarness(t, api)

			h.c.StartSearch()
			v := h.waitStatus(t, StatusError)
			assert.Contains(t, v.Error, tc.want)
			assert.False(t, v.Loading)

			h.c.Reset()
			v = h.waitStatus(t, StatusIdle)
			assert.Empty(t, v.Error)
		})
	}
}

func TestSearch_AlreadyWaitingCountsAsSearching(t *testing.T) {
	api := newFakeAPI()
	api.joinResp = types.QueueResponse{Status: types.QueueAlreadyWaiting}
	h := newHarness(t, api)

	h.c.StartSearch()
	v := h.waitStatus(t, StatusSearching)
	assert.True(t, v.Searching)
}

func TestSearch_PollsUntilMatchThenHandsOff(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	h.c.StartSearch()
	h.waitStatus(t, StatusSearching)
	require.Eventually(t, func() bool { return api.checks.Load() >= 1 }, time.Second, 5*time.Millisecond, "immediate first check")

	h.advanceUntil(t, DefaultPollInterval, func() bool { return api.checks.Load() >= 3 })

	// A match without a game id is not a match.
	api.setMatch(types.MatchResponse{Status: types.QueueMatchFound}, nil)
	before := api.checks.Load()
	h.advanceUntil(t, DefaultPollInterval, func() bool { return api.checks.Load() >= before+2 })
	assert.Equal(t, StatusSearching, h.view(t).Status)

	api.setMatch(types.MatchResponse{Status: types.QueueMatchFound, GameID: "g42", GameName: "wordsearch", OpponentID: "op"}, nil)
	h.advanceUntil(t, DefaultPollInterval, func() bool { return h.view(t).Status == StatusFound })

	v := h.view(t)
	require.NotNil(t, v.Match)
	assert.Equal(t, "g42", v.Match.GameID)
	assert.False(t, v.Searching)

	select {
	case <-h.matches:
		t.Fatal("handoff before the delay")
	default:
	}

	h.clock.Advance(handoffDelay)
	select {
	case m := <-h.matches:
		assert.Equal(t, "g42", m.GameID)
	case <-time.After(time.Second):
		t.Fatal("no handoff")
	}

	checks := api.checks.Load()
	h.clock.Advance(5 * DefaultPollInterval)
	_ = h.view(t)
	assert.Equal(t, checks, api.checks.Load(), "polling stopped after the match")
}

func TestSearch_CheckErrorKeepsSearching(t *testing.T) {
	api := newFakeAPI()
	api.setMatch(types.MatchResponse{}, errors.New("502"))
	h := newHarness(t, api)

	h.c.StartSearch()
	h.waitStatus(t, StatusSearching)
	h.advanceUntil(t, DefaultPollInterval, func() bool { return api.checks.Load() >= 3 })
	assert.Equal(t, StatusSearching, h.view(t).Status)
}

func TestCancelSearch(t *testing.T) {
	api := newFakeAPI()
	h := newHarness(t, api)

	h.c.CancelSearch()
	_ = h.view(t)
	assert.Zero(t, api.leaves.Load(), "cancel is a no-op unless searching")

	h.c.StartSearch()
	h.waitStatus(t, StatusSearching)
	h.c.CancelSearch()
	v := h.waitStatus(t, StatusIdle)
	assert.Nil(t, v.Match)
	assert.EqualValues(t, 1, api.leaves.Load())

	require.Eventually(t, func() bool { return !h.view(t).Loading }, time.Second, 5*time.Millisecond)
	checks := api.checks.Load()
	h.clock.Advance(5 * DefaultPollInterval)
	_ = h.view(t)
	assert.Equal(t, checks, api.checks.Load(), "no polling after cancel")
}

func TestClose_DiscardsInFlightJoin(t *testing.T) {
	api := newFakeAPI()
	api.joinGate = make(chan struct{})
	h := newHarness(t, api)

	updates := make(chan View, 8)
	h.c.Post(Subscribe{ClientID: "ui", Outbox: updates})
	h.c.StartSearch()
	require.Eventually(t, func() bool { return api.joins.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.c.Close())
	close(api.joinGate)

	var last View
	for v := range updates {
		last = v
	}
	assert.NotEqual(t, StatusSearching, last.Status)

	_, err := h.c.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, api.checks.Load())
}
