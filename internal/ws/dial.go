package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type Dialer struct {
	HTTPClient   *http.Client
	WriteTimeout time.Duration
	Queue        int
	ReadLimit    int64
	Logger       *zap.Logger
}

func (d Dialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", redact(rawURL), err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	wt := d.WriteTimeout
	if wt <= 0 {
		wt = DefaultWriteTimeout
	}
	queue := d.Queue
	if queue <= 0 {
		queue = DefaultQueue
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return newLink(conn, log, wt, queue), nil
}

// URL builds <base>/<gameKind>/<sessionID>?ws_token=<token>.
func URL(base, gameKind, sessionID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse websocket base: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}

	u = u.JoinPath(gameKind, sessionID)
	q := u.Query()
	q.Set("ws_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact keeps the short-lived token out of logs and errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("ws_token") {
		q.Set("ws_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
