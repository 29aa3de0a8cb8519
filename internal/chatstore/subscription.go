package chatstore

import (
	"context"

	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/realtime"
	"go.uber.org/zap"
)

// Subscribe starts consuming the realtime feed for userID and refreshing the
// previews on relevant changes. Calling it while a subscription is already
// active is a no-op; Unsubscribe tears it down.
func (s *Store) Subscribe(ctx context.Context, userID string) {
	s.mu.Lock()
	if s.subCancel != nil {
		s.mu.Unlock()
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.subCancel = cancel
	s.mu.Unlock()

	events := s.feed.Subscribe(subCtx)
	go s.consume(subCtx, userID, events)
}

// Unsubscribe stops the realtime subscription. Safe to call when none is
// active.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	cancel := s.subCancel
	s.subCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Store) consume(ctx context.Context, userID string, events <-chan realtime.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				s.logger.Warn("realtime feed closed", zap.String("user_id", userID))
				return
			}
			s.handleEvent(ctx, userID, evt)
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, userID string, evt realtime.ChangeEvent) {
	switch evt.Table {
	case "chats":
		if evt.Chat == nil {
			return
		}
		if evt.Chat.Participant1 != userID && evt.Chat.Participant2 != userID {
			return
		}
		if err := s.FetchChats(ctx, userID); err != nil {
			s.logger.Warn("refresh after chat change failed", zap.Error(err))
		}

	case "chat_messages":
		if evt.Type != "INSERT" || evt.Message == nil {
			return
		}
		msg := evt.Message
		if err := s.FetchChats(ctx, userID); err != nil {
			s.logger.Warn("refresh after message failed", zap.Error(err))
		}
		if msg.SenderID == userID {
			return
		}

		s.mu.Lock()
		active := s.activeChatID
		var preview *ChatPreview
		for i := range s.chats {
			if s.chats[i].ID == msg.ChatID {
				preview = &s.chats[i]
				break
			}
		}
		var name string
		if preview != nil {
			name = preview.Name
		}
		s.mu.Unlock()

		// Only chats the viewer already knows about produce a banner; the
		// open conversation never does.
		if preview == nil || msg.ChatID == active {
			return
		}
		if err := s.notifier.Notify(ctx, notify.LocalNotification{
			Title: "New message from " + name,
			Body:  msg.Message,
			Data: map[string]string{
				"type":    "new_message",
				"chat_id": msg.ChatID,
			},
		}); err != nil {
			s.logger.Warn("local notification failed", zap.Error(err))
		}
	}
}
