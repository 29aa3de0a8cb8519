// Package messaging implements sending chat messages: persistence, change
// feed publication, and the best-effort push to the recipient's devices.
package messaging

import (
	"context"
	"fmt"

	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/push"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

const previewLimit = 100

// Store is the persistence surface the service writes through.
type Store interface {
	GetOrCreateChat(ctx context.Context, userA, userB string) (*storage.Chat, bool, error)
	GetChat(ctx context.Context, chatID string) (*storage.Chat, error)
	InsertMessage(ctx context.Context, chatID, senderID, message string, imageURLs []string) (*storage.ChatMessage, error)
	ProfileName(ctx context.Context, userID string) (string, error)
	PushTokensForUser(ctx context.Context, userID string) ([]string, error)
}

// Service sends messages between users.
type Service struct {
	store   Store
	bus     *bus.Bus
	gateway push.Gateway
	logger  *zap.Logger
}

// New creates a messaging service.
func New(store Store, b *bus.Bus, gateway push.Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, bus: b, gateway: gateway, logger: logger}
}

// SendToUser delivers a message from sender to recipient, creating their
// chat if it does not exist yet. A block in either direction refuses the
// send with storage.ErrBlocked.
func (s *Service) SendToUser(ctx context.Context, senderID, recipientID, text string, imageURLs []string) (*storage.ChatMessage, error) {
	chat, created, err := s.store.GetOrCreateChat(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}
	if created {
		s.bus.Publish(bus.NewChange(bus.KindChatInserted, "chats", "INSERT", chat))
	}
	return s.send(ctx, chat, senderID, text, imageURLs)
}

// SendToChat delivers a message into an existing chat. The sender must be a
// participant.
func (s *Service) SendToChat(ctx context.Context, chatID, senderID, text string, imageURLs []string) (*storage.ChatMessage, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, ErrChatNotFound)
	}
	if chat.Participant1 != senderID && chat.Participant2 != senderID {
		return nil, fmt.Errorf("sender %s: %w", senderID, ErrNotParticipant)
	}
	return s.send(ctx, chat, senderID, text, imageURLs)
}

func (s *Service) send(ctx context.Context, chat *storage.Chat, senderID, text string, imageURLs []string) (*storage.ChatMessage, error) {
	msg, err := s.store.InsertMessage(ctx, chat.ID, senderID, text, imageURLs)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.bus.Publish(bus.NewChange(bus.KindMessageInserted, "chat_messages", "INSERT", msg))
	s.bus.Publish(bus.NewChange(bus.KindChatUpdated, "chats", "UPDATE", chat))

	// Delivery is best effort; the message is already durable.
	s.pushToRecipient(ctx, chat.OtherParticipant(senderID), senderID, chat.ID, msg)

	return msg, nil
}

func (s *Service) pushToRecipient(ctx context.Context, recipientID, senderID, chatID string, msg *storage.ChatMessage) {
	tokens, err := s.store.PushTokensForUser(ctx, recipientID)
	if err != nil {
		s.logger.Error("failed to load recipient tokens",
			zap.Error(err), zap.String("recipient_id", recipientID))
		return
	}
	if len(tokens) == 0 {
		return
	}

	senderName, err := s.store.ProfileName(ctx, senderID)
	if err != nil {
		s.logger.Warn("failed to load sender name", zap.Error(err))
	}
	if senderName == "" {
		senderName = "Someone"
	}

	body := msg.Preview()
	if runes := []rune(body); len(runes) > previewLimit {
		body = string(runes[:previewLimit]) + "..."
	}

	notifications := make([]push.Notification, len(tokens))
	for i, token := range tokens {
		notifications[i] = push.Notification{
			To:    token,
			Title: senderName,
			Body:  body,
			Data: map[string]string{
				"type":        "new_message",
				"chatId":      chatID,
				"otherUserId": senderID,
				"userName":    senderName,
			},
		}
	}
	if err := s.gateway.Send(ctx, notifications); err != nil {
		s.logger.Error("message push failed",
			zap.Error(err), zap.String("chat_id", chatID))
	}
}
