package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

const DefaultTimeout = 10 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// Client talks to the game's REST surface: the websocket credential exchange
// and the matchmaking queue. Safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	clock   clockwork.Clock
	log     *zap.Logger

	mu       sync.RWMutex
	headers  map[string]string
	token    string
	identity Identity
}

func New(baseURL string, opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		clock:   opts.Clock,
		log:     opts.Logger,
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	c.headers[key] = value
	c.mu.Unlock()
}

// SetToken installs the bearer access token. An unparseable token is rejected
// and clears any previous credential.
func (c *Client) SetToken(token string) error {
	id, err := ParseIdentity(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.token, c.identity = "", Identity{}
		return err
	}
	c.token, c.identity = token, id
	return nil
}

func (c *Client) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.token != ""
}

// Authenticated reports whether a non-expired access token is installed.
func (c *Client) Authenticated() bool {
	id, ok := c.Identity()
	return ok && id.Valid(c.clock.Now())
}

// SessionToken exchanges the access token for a single-use websocket credential.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	if !c.Authenticated() {
		return "", ErrNoCredential
	}

	var out types.SessionToken
	if err := c.do(ctx, http.MethodPost, "/ws-auth", nil, &out); err != nil {
		return "", fmt.Errorf("fetch session token: %w", err)
	}
	if out.WSToken == "" {
		return "", fmt.Errorf("fetch session token: empty ws_token")
	}
	c.log.Debug("session token issued", zap.Int("expires_in", out.ExpiresIn))
	return out.WSToken, nil
}

func (c *Client) JoinQueue(ctx context.Context, gameName string) (types.QueueResponse, error) {
	var out types.QueueResponse
	if err := c.do(ctx, http.MethodPost, "/matchmaking/join", types.QueueRequest{GameName: gameName}, &out); err != nil {
		return out, fmt.Errorf("join queue: %w", err)
	}
	return out, nil
}

func (c *Client) LeaveQueue(ctx context.Context, gameName string) (types.QueueResponse, error) {
	var out types.QueueResponse
	if err := c.do(ctx, http.MethodPost, "/matchmaking/leave", types.QueueRequest{GameName: gameName}, &out); err != nil {
		return out, fmt.Errorf("leave queue: %w", err)
	}
	return out, nil
}

func (c *Client) CheckMatch(ctx context.Context) (types.MatchResponse, error) {
	var out types.MatchResponse
	if err := c.do(ctx, http.MethodGet, "/matchmaking/check-match", nil, &out); err != nil {
		return out, fmt.Errorf("check match: %w", err)
	}
	return out, nil
}

// QueueStatus returns the number of waiting players per game.
func (c *Client) QueueStatus(ctx context.Context) (map[string]int, error) {
	var out struct {
		Queues map[string]int `json:"queues"`
	}
	if err := c.do(ctx, http.MethodGet, "/matchmaking/status", nil, &out); err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}
	return out.Queues, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(responseBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(responseBody))
	}
	return nil
}
