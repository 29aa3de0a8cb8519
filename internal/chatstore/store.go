// Package chatstore maintains the signed-in user's chat previews: unread
// counts, last messages, and the real-time subscription keeping them fresh.
package chatstore

import (
	"context"
	"sync"
	"time"

	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/realtime"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

// ChatPreview is one row of the chat list: a summarized two-party
// conversation. Derived on every fetch, never persisted.
type ChatPreview struct {
	ID          string
	Name        string
	LastMessage string
	Timestamp   time.Time
	UnreadCount int
	Avatar      string
	OtherUserID string
}

// Backend is the persistence surface the store reads through.
type Backend interface {
	BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	ChatsForUser(ctx context.Context, userID string, limit int) ([]storage.Chat, error)
	ProfilesByID(ctx context.Context, ids []string) (map[string]storage.Profile, error)
	LatestMessages(ctx context.Context, chatIDs []string) (map[string]storage.ChatMessage, error)
	UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error)
	MarkChatRead(ctx context.Context, chatID, userID string, at time.Time) error
}

// Feed delivers backend row-change events until its context is canceled.
type Feed interface {
	Subscribe(ctx context.Context) <-chan realtime.ChangeEvent
}

const (
	chatFetchLimit = 50

	// Bursts of realtime events, focus events and pull-to-refresh all
	// funnel into FetchChats; calls within this window collapse.
	minFetchInterval = 1500 * time.Millisecond
)

// Store holds the chat previews for one signed-in user. Construct one per
// session; it owns its subscription handle and fetch throttle.
type Store struct {
	backend  Backend
	feed     Feed
	notifier notify.Notifier
	logger   *zap.Logger

	mu           sync.Mutex
	chats        []ChatPreview
	loading      bool
	initialized  bool
	activeChatID string
	lastErr      error

	fetchInFlight bool
	lastFetchAt   time.Time

	subCancel context.CancelFunc

	now      func() time.Time
	throttle time.Duration
}

// New creates a chat store.
func New(backend Backend, feed Feed, notifier notify.Notifier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:  backend,
		feed:     feed,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		throttle: minFetchInterval,
	}
}

// Chats returns a copy of the current previews.
func (s *Store) Chats() []ChatPreview {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatPreview, len(s.chats))
	copy(out, s.chats)
	return out
}

// Loading reports whether the first fetch is still in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Initialized reports whether at least one fetch has completed.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// LastError returns the most recent fetch failure, nil after a clean fetch.
// Prior previews are always retained across failures; this is how callers
// distinguish "fresh" from "stale but usable".
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetActiveChat records which conversation is open in the viewer's UI. The
// active chat's unread count is suppressed to zero; pass "" when no chat is
// open.
func (s *Store) SetActiveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChatID = chatID
}

// ActiveChat returns the currently open chat id, "" if none.
func (s *Store) ActiveChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// FetchChats rebuilds the preview list from the backend. Concurrent and
// rapid repeated calls collapse: while a fetch is in flight, or within the
// throttle window of the last one, the call is a no-op. On failure the
// previous previews are retained and the error is both recorded and
// returned; callers decide whether staleness is worth surfacing.
func (s *Store) FetchChats(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	now := s.now()
	if s.fetchInFlight || now.Sub(s.lastFetchAt) < s.throttle {
		s.mu.Unlock()
		return nil
	}
	s.fetchInFlight = true
	s.lastFetchAt = now
	if !s.initialized {
		s.loading = true
	}
	active := s.activeChatID
	s.mu.Unlock()

	previews, err := s.buildPreviews(ctx, userID, active)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchInFlight = false
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.logger.Error("failed to fetch chats", zap.Error(err), zap.String("user_id", userID))
		return err
	}
	s.chats = previews
	s.initialized = true
	s.lastErr = nil
	return nil
}

func (s *Store) buildPreviews(ctx context.Context, userID, activeChatID string) ([]ChatPreview, error) {
	return BuildPreviews(ctx, s.backend, userID, activeChatID)
}

// BuildPreviews runs the preview pipeline once: blocked-user filter, batch
// profile and last-message lookups, aggregated unread counts. The active
// chat, if any, reads as zero unread.
func BuildPreviews(ctx context.Context, backend Backend, userID, activeChatID string) ([]ChatPreview, error) {
	blocked, err := backend.BlockedUserIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	chats, err := backend.ChatsForUser(ctx, userID, chatFetchLimit)
	if err != nil {
		return nil, err
	}

	visible := chats[:0]
	for _, chat := range chats {
		if _, isBlocked := blocked[chat.OtherParticipant(userID)]; !isBlocked {
			visible = append(visible, chat)
		}
	}

	chatIDs := make([]string, len(visible))
	otherIDs := make([]string, len(visible))
	for i, chat := range visible {
		chatIDs[i] = chat.ID
		otherIDs[i] = chat.OtherParticipant(userID)
	}

	// Batch lookups: one query per concern, not one per chat.
	profiles, err := backend.ProfilesByID(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	latest, err := backend.LatestMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	counts, err := backend.UnreadCounts(ctx, userID, chatIDs)
	if err != nil {
		return nil, err
	}

	previews := make([]ChatPreview, 0, len(visible))
	for _, chat := range visible {
		otherID := chat.OtherParticipant(userID)

		preview := ChatPreview{
			ID:          chat.ID,
			Name:        "Unknown",
			LastMessage: "No messages",
			Timestamp:   chat.CreatedAt,
			OtherUserID: otherID,
		}
		if profile, ok := profiles[otherID]; ok && profile.Name != "" {
			preview.Name = profile.Name
			preview.Avatar = profile.AvatarURL
		}
		if msg, ok := latest[chat.ID]; ok {
			preview.LastMessage = msg.Preview()
			preview.Timestamp = msg.CreatedAt
		}
		// Never badge the conversation the viewer is looking at.
		if chat.ID != activeChatID {
			preview.UnreadCount = counts[chat.ID]
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

// MarkAsRead zeroes the chat's local unread count immediately, then persists
// the viewer's last-read watermark in the background. Persistence failures
// are logged and dropped; the next fetch reconciles.
func (s *Store) MarkAsRead(ctx context.Context, chatID, userID string) {
	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			s.chats[i].UnreadCount = 0
		}
	}
	at := s.now()
	s.mu.Unlock()

	go func() {
		if err := s.backend.MarkChatRead(context.WithoutCancel(ctx), chatID, userID, at); err != nil {
			s.logger.Error("failed to persist read marker",
				zap.Error(err), zap.String("chat_id", chatID))
		}
	}()
}
