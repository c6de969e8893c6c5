// Package fakeserver is an in-process stand-in for the game backend: the
// credential endpoint, the matchmaking REST surface and the game socket.
// Tests script the socket side through Peer.
package fakeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenTTL = 600

type Server struct {
	log    *zap.Logger
	secret []byte

	mu      sync.Mutex
	tokens  map[string]bool   // issued socket tokens not yet used
	queued  map[string]string // player id -> game name
	matches map[string]types.MatchResponse
	peers   map[*Peer]struct{}
	closed  bool

	accepted chan *Peer
}

func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:      log,
		secret:   []byte(uuid.NewString()),
		tokens:   make(map[string]bool),
		queued:   make(map[string]string),
		matches:  make(map[string]types.MatchResponse),
		peers:    make(map[*Peer]struct{}),
		accepted: make(chan *Peer, 8),
	}
}

// Routes mounts the REST surface under /api and the socket under /ws.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/ws-auth", s.issueSocketToken)
		r.Post("/matchmaking/join", s.join)
		r.Post("/matchmaking/leave", s.leave)
		r.Get("/matchmaking/check-match", s.checkMatch)
		r.Get("/matchmaking/status", s.queueStatus)
	})
	r.Get("/ws/{game}/{id}", s.socket)
	return r
}

// AccessToken signs a bearer credential the REST routes accept.
func (s *Server) AccessToken(playerID, username string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"sub": playerID, "username": username}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// PairOnNextCheck makes the next check-match from playerID report a match.
func (s *Server) PairOnNextCheck(playerID string, m types.MatchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[playerID] = m
}

func (s *Server) Queued(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queued[playerID]
	return ok
}

// Accept waits for the next client socket.
func (s *Server) Accept(ctx context.Context) (*Peer, error) {
	select {
	case p := <-s.accepted:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drops every live socket without a close handshake.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.Drop()
	}
}

// ------------------------------------------------------------------
// REST

type playerKey struct{}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing credential")
			return
		}
		tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		sub, err := tok.Claims.GetSubject()
		if err != nil || sub == "" {
			writeError(w, http.StatusUnauthorized, "credential has no subject")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, sub)))
	})
}

func player(r *http.Request) string {
	id, _ := r.Context().Value(playerKey{}).(string)
	return id
}

func (s *Server) issueSocketToken(w http.ResponseWriter, r *http.Request) {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, types.SessionToken{WSToken: token, ExpiresIn: tokenTTL})
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var req types.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameName == "" {
		writeError(w, http.StatusUnprocessableEntity, "game_name is required")
		return
	}
	id := player(r)

	s.mu.Lock()
	_, already := s.queued[id]
	s.queued[id] = req.GameName
	s.mu.Unlock()

	status := types.QueueWaiting
	if already {
		status = types.QueueAlreadyWaiting
	}
	s.log.Debug("queue join", zap.String("player_id", id), zap.String("status", status))
	writeJSON(w, http.StatusOK, types.QueueResponse{Status: status, PlayerID: id})
}

func (s *Server) leave(w http.ResponseWriter, r *http.Request) {
	id := player(r)
	s.mu.Lock()
	_, was := s.queued[id]
	delete(s.queued, id)
	s.mu.Unlock()

	status := types.QueueLeft
	if !was {
		status = types.QueueNotInQueue
	}
	writeJSON(w, http.StatusOK, types.QueueResponse{Status: status, PlayerID: id})
}

func (s *Server) checkMatch(w http.ResponseWriter, r *http.Request) {
	id := player(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	game, queued := s.queued[id]
	if !queued {
		writeJSON(w, http.StatusOK, types.MatchResponse{Status: types.QueueNotInQueue})
		return
	}
	m, ok := s.matches[id]
	if !ok {
		writeJSON(w, http.StatusOK, types.MatchResponse{Status: types.QueueWaiting})
		return
	}
	delete(s.matches, id)
	delete(s.queued, id)
	if m.Status == "" {
		m.Status = types.QueueMatchFound
	}
	if m.GameName == "" {
		m.GameName = game
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	counts := make(map[string]int)
	for _, game := range s.queued {
		counts[game]++
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"queues": counts})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// ------------------------------------------------------------------
// Socket

func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("ws_token")

	s.mu.Lock()
	valid := s.tokens[token]
	delete(s.tokens, token)
	closed := s.closed
	s.mu.Unlock()

	if !valid || closed {
		http.Error(w, "invalid or reused token", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("accept failed", zap.Error(err))
		return
	}

	p := &Peer{
		Game:      chi.URLParam(r, "game"),
		SessionID: chi.URLParam(r, "id"),
		conn:      conn,
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
	}()

	s.log.Debug("socket accepted", zap.String("game", p.Game), zap.String("session_id", p.SessionID))
	select {
	case s.accepted <- p:
	default:
		_ = conn.Close(websocket.StatusTryAgainLater, "no one is scripting this socket")
		return
	}

	<-p.done
}

// Peer is the server end of one client socket.
type Peer struct {
	Game      string
	SessionID string

	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Send writes a raw frame, or marshals v when it is not already bytes or a string.
func (p *Peer) Send(ctx context.Context, v any) error {
	var data []byte
	switch msg := v.(type) {
	case string:
		data = []byte(msg)
	case []byte:
		data = msg
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal frame: %w", err)
		}
		data = b
	}
	return p.conn.Write(ctx, websocket.MessageText, data)
}

// Next reads one client frame and returns its type with the raw payload.
func (p *Peer) Next(ctx context.Context) (string, []byte, error) {
	_, data, err := p.conn.Read(ctx)
	if err != nil {
		return "", nil, err
	}
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", data, fmt.Errorf("client sent malformed frame: %w", err)
	}
	return env.Type, data, nil
}

// Expect skips frames until one of the given type arrives.
func (p *Peer) Expect(ctx context.Context, typ string) ([]byte, error) {
	for {
		got, data, err := p.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", typ, err)
		}
		if got == typ {
			return data, nil
		}
	}
}

// Close performs a close handshake with the given status.
func (p *Peer) Close(code websocket.StatusCode, reason string) error {
	err := p.conn.Close(code, reason)
	p.release()
	return err
}

// Drop tears the TCP connection down without a close frame.
func (p *Peer) Drop() {
	_ = p.conn.CloseNow()
	p.release()
}

func (p *Peer) release() { p.once.Do(func() { close(p.done) }) }
