package ws

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Transport is one live socket to the session server.
type Transport interface {
	// Send queues a frame. It reports false when the link is closed or the
	// queue is full; the frame is dropped in both cases.
	Send(data []byte) bool
	// ReadLoop delivers frames to onFrame until the socket or ctx ends.
	ReadLoop(ctx context.Context, onFrame func([]byte)) error
	// Close flushes queued frames, then closes with a normal-closure status.
	Close(reason string) error
}

const (
	DefaultWriteTimeout = 3 * time.Second
	DefaultQueue        = 32
	DefaultReadLimit    = 1 << 20
)

// Link owns a client websocket. All writes go through a single goroutine so
// frames leave in the order Send accepted them.
type Link struct {
	conn         *websocket.Conn
	log          *zap.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	reason string
	out    chan []byte
	done   chan struct{}
}

func newLink(conn *websocket.Conn, log *zap.Logger, writeTimeout time.Duration, queue int) *Link {
	l := &Link{
		conn:         conn,
		log:          log,
		writeTimeout: writeTimeout,
		out:          make(chan []byte, queue),
		done:         make(chan struct{}),
	}
	go l.writer()
	return l
}

func (l *Link) writer() {
	defer close(l.done)

	failed := false
	for data := range l.out {
		if failed {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		err := l.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			l.log.Warn("websocket write failed", zap.Error(err))
			failed = true
			// Unblocks the reader so the owner sees the failure.
			_ = l.conn.CloseNow()
		}
	}

	if !failed {
		l.mu.Lock()
		reason := l.reason
		l.mu.Unlock()
		_ = l.conn.Close(websocket.StatusNormalClosure, reason)
	}
}

func (l *Link) Send(data []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.out <- data:
		return true
	default:
		l.log.Warn("websocket send queue full, dropping frame")
		return false
	}
}

func (l *Link) ReadLoop(ctx context.Context, onFrame func([]byte)) error {
	for {
		_, data, err := l.conn.Read(ctx)
		if err != nil {
			return err
		}
		onFrame(data)
	}
}

func (l *Link) Close(reason string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	l.reason = reason
	close(l.out)
	l.mu.Unlock()

	<-l.done
	return nil
}

// IsNormalClosure reports whether err ended the socket cleanly, either by a
// normal-closure frame or the peer going away.
func IsNormalClosure(err error) bool {
	if err == nil {
		return false
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// IsLocalClose reports whether err came from our own Close or a cancelled ctx.
func IsLocalClose(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}
