// Package api exposes the daemon's HTTP surface: the REST endpoints, the
// scheduled-function trigger, and the WebSocket change feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

// Store is the persistence surface the handlers read and write.
type Store interface {
	BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	ChatsForUser(ctx context.Context, userID string, limit int) ([]storage.Chat, error)
	ProfilesByID(ctx context.Context, ids []string) (map[string]storage.Profile, error)
	LatestMessages(ctx context.Context, chatIDs []string) (map[string]storage.ChatMessage, error)
	UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error)
	MarkChatRead(ctx context.Context, chatID, userID string, at time.Time) error
	GetChat(ctx context.Context, chatID string) (*storage.Chat, error)
	CreateInvite(ctx context.Context, inv *storage.MeetupInvite) error
	GetInvite(ctx context.Context, inviteID string) (*storage.MeetupInvite, error)
	RespondInvite(ctx context.Context, inviteID string, status storage.InviteStatus, at time.Time) error
	UpsertPushToken(ctx context.Context, userID, expoPushToken string) error
}

// Messenger sends chat messages.
type Messenger interface {
	SendToUser(ctx context.Context, senderID, recipientID, text string, imageURLs []string) (*storage.ChatMessage, error)
	SendToChat(ctx context.Context, chatID, senderID, text string, imageURLs []string) (*storage.ChatMessage, error)
}

// Planner reacts to invite lifecycle changes by scheduling or canceling
// notification jobs.
type Planner interface {
	InviteCreated(ctx context.Context, invite *storage.MeetupInvite) error
	InviteAccepted(ctx context.Context, invite *storage.MeetupInvite) error
	InviteDeclined(ctx context.Context, invite *storage.MeetupInvite) error
}

// JobRunner drains due notification jobs.
type JobRunner interface {
	Run(ctx context.Context) (int, error)
}

// FeedHandler serves the WebSocket change feed.
type FeedHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server is the daemon's HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	store     Store
	messenger Messenger
	planner   Planner
	runner    JobRunner
	feed      FeedHandler
	bus       *bus.Bus
}

// NewServer builds the server and its routes.
func NewServer(addr string, store Store, messenger Messenger, planner Planner, runner JobRunner, feed FeedHandler, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		logger:    logger,
		store:     store,
		messenger: messenger,
		planner:   planner,
		runner:    runner,
		feed:      feed,
		bus:       b,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("POST /api/chats/{id}/read", s.handleMarkRead)
	mux.HandleFunc("POST /api/invites", s.handleCreateInvite)
	mux.HandleFunc("POST /api/invites/{id}/respond", s.handleRespondInvite)
	mux.HandleFunc("POST /api/push-tokens", s.handleUpsertPushToken)
	mux.HandleFunc("POST /functions/process-meetup-notifications", s.handleProcessJobs)
	mux.HandleFunc("GET /ws", s.feed.ServeWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving requests. Blocks until Stop or failure.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
