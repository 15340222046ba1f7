// Package api exposes the HTTP surface: prompt submission, chat
// management, the model catalog, the SSE stream endpoint, and health
// probes.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/stream"
	"github.com/wingleeio/chat-zeron/internal/turn"
)

// Turns is the controller surface the handlers consume.
type Turns interface {
	SendPrompt(ctx context.Context, p turn.SendParams) (*store.Message, error)
	Stop(ctx context.Context, userID, chatID uuid.UUID) error
	Branch(ctx context.Context, userID, chatID, messageID uuid.UUID) (*store.Chat, error)
}

// Streams is the durable-stream read surface for the SSE endpoint.
type Streams interface {
	Status(ctx context.Context, id string) (stream.Status, error)
	Follow(ctx context.Context, id string) (<-chan event.Frame, error)
}

// Chats is the persistence surface the handlers consume.
type Chats interface {
	GetChat(ctx context.Context, id uuid.UUID) (*store.Chat, error)
	ListChats(ctx context.Context, ownerID uuid.UUID, limit int) ([]*store.Chat, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
	ListChatMessages(ctx context.Context, chatID uuid.UUID) ([]*store.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*store.Message, error)
	ListModels(ctx context.Context) ([]*store.Model, error)
}

// Pinger reports backend liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the server's dependencies.
type Config struct {
	Turns    Turns
	Streams  Streams
	Store    Chats
	Resolver Resolver

	// DB and Cache are probed by the readiness endpoint.
	DB    Pinger
	Cache Pinger

	Logger log.Logger
}

// Server is the HTTP server. It implements http.Handler with the
// middleware stack applied.
type Server struct {
	mux    *http.ServeMux
	auth   func(http.Handler) http.Handler
	logger log.Logger
}

// NewServer wires all routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Turns == nil || cfg.Streams == nil || cfg.Store == nil {
		return nil, errors.New("turns, streams, and store are required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		auth:   requireUser(cfg.Resolver, cfg.Logger),
		logger: cfg.Logger.With("component", "api"),
	}

	health := &healthHandler{db: cfg.DB, cache: cfg.Cache, logger: s.logger}
	s.mux.HandleFunc("GET /health", health.alive)
	s.mux.HandleFunc("GET /ready", health.ready)

	h := &handler{turns: cfg.Turns, streams: cfg.Streams, store: cfg.Store, logger: s.logger}
	s.mux.Handle("POST /api/chat", s.auth(http.HandlerFunc(h.sendPrompt)))
	s.mux.Handle("POST /api/chat/{id}/stop", s.auth(http.HandlerFunc(h.stopChat)))
	s.mux.Handle("POST /api/chat/{id}/branch", s.auth(http.HandlerFunc(h.branchChat)))
	s.mux.Handle("GET /api/chats", s.auth(http.HandlerFunc(h.listChats)))
	s.mux.Handle("GET /api/chats/{id}", s.auth(http.HandlerFunc(h.getChat)))
	s.mux.Handle("DELETE /api/chats/{id}", s.auth(http.HandlerFunc(h.deleteChat)))
	s.mux.Handle("GET /api/models", s.auth(http.HandlerFunc(h.listModels)))
	s.mux.Handle("GET /api/stream/{id}", s.auth(http.HandlerFunc(h.followStream)))

	return s, nil
}

// ServeHTTP applies the middleware stack: recovery, then logging, then
// the routed handlers (auth is applied per route).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var handler http.Handler = s.mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}
