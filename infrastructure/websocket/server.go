// Package websocket is the realtime transport: it authenticates upgrade
// requests, pumps frames between sockets and the orchestrator, and serves
// the chat history over plain HTTP.
package websocket

import (
	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/runtime"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dispatcher receives connection lifecycle and inbound frames.
type Dispatcher interface {
	Connect(ctx context.Context, userID domain.UserID, conn contract.Connection) error
	Disconnect(ctx context.Context, connID domain.ConnectionID)
	Handle(ctx context.Context, origin runtime.Origin, raw []byte)
	History(userID domain.UserID, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
}

// TokenValidator maps a bearer token to the user it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (domain.UserID, error)
}

type Settings struct {
	SendBufferSize int
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	AllowedOrigins []string
}

func (s Settings) pingPeriod() time.Duration {
	return s.PongTimeout * 9 / 10
}

func (s Settings) withDefaults() Settings {
	if s.SendBufferSize <= 0 {
		s.SendBufferSize = 256
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 64 * 1024
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.PongTimeout <= 0 {
		s.PongTimeout = 60 * time.Second
	}
	return s
}

type Server struct {
	ctx        context.Context
	log        *slog.Logger
	dispatcher Dispatcher
	tokens     TokenValidator
	origins    *Origins
	upgrader   websocket.Upgrader
	settings   Settings

	mu      sync.Mutex
	clients map[domain.ConnectionID]*Client
}

// NewServer builds the transport. ctx bounds the lifetime of every connection it accepts.
func NewServer(ctx context.Context, log *slog.Logger, dispatcher Dispatcher,
	tokens TokenValidator, settings Settings) *Server {
	settings = settings.withDefaults()
	s := &Server{
		ctx:        ctx,
		log:        log,
		dispatcher: dispatcher,
		tokens:     tokens,
		origins:    NewOrigins(log, settings.AllowedOrigins),
		settings:   settings,
		clients:    make(map[domain.ConnectionID]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.Allowed,
	}
	return s
}

// Routes returns the HTTP routes of the transport.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /chats/{chatID}/messages", s.handleHistory)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Shutdown closes every open connection with a close frame.
func (s *Server) Shutdown() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	s.log.Info("Websocket connections closed", "count", len(clients))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.origins.Allowed(r) {
		s.log.Warn("Blocked connection from disallowed origin", "origin", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := newClient(domain.ConnectionID(uuid.NewString()), userID, conn, s.log, s.settings)
	if err := s.dispatcher.Connect(s.ctx, userID, client); err != nil {
		s.log.Error("Connection not registered", "user_id", userID, "error", err)
		_ = conn.Close()
		return
	}
	s.track(client)

	go client.writePump()
	go func() {
		defer s.untrack(client)
		client.readPump(s.ctx, s.dispatcher)
	}()
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	chatID := domain.ChatID(r.PathValue("chatID"))
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.dispatcher.History(userID, chatID, cursor)
	switch {
	case stderrors.Is(err, errors.ErrForbidden):
		s.log.Warn("History refused to a non member", "user_id", userID, "chat_id", chatID)
		http.Error(w, "not a member of this chat", http.StatusForbidden)
		return
	case err != nil:
		s.log.Error("History not loaded", "chat_id", chatID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(historyResponse{Messages: messages, Cursor: next})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	userID, err := s.tokens.ValidateToken(auth.TokenFromRequest(r))
	if err != nil {
		s.log.Debug("Rejected unauthenticated request", "path", r.URL.Path, "error", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}
