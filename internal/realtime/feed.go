// Package realtime carries row-level change events from the backend tables
// to subscribed clients over WebSocket.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/activityhub/activityhub/internal/storage"
)

// Envelope is the wire form of one change-feed event.
type Envelope struct {
	ID    string          `json:"id"`
	Table string          `json:"table"`
	Type  string          `json:"type"`
	New   json.RawMessage `json:"new"`
	TS    time.Time       `json:"ts"`
}

// ChatRow is the wire form of a chats row.
type ChatRow struct {
	ID            string    `json:"id"`
	Participant1  string    `json:"participant_1"`
	Participant2  string    `json:"participant_2"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// MessageRow is the wire form of a chat_messages row.
type MessageRow struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeEvent is a decoded change-feed event delivered to subscribers.
// Exactly one of Chat and Message is set, matching Table.
type ChangeEvent struct {
	Table   string
	Type    string
	Chat    *ChatRow
	Message *MessageRow
}

// Decode parses an envelope into a ChangeEvent.
func Decode(env Envelope) (ChangeEvent, error) {
	evt := ChangeEvent{Table: env.Table, Type: env.Type}
	switch env.Table {
	case "chats":
		var row ChatRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return evt, fmt.Errorf("decode chat row: %w", err)
		}
		evt.Chat = &row
	case "chat_messages":
		var row MessageRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return evt, fmt.Errorf("decode message row: %w", err)
		}
		evt.Message = &row
	default:
		return evt, fmt.Errorf("unknown change table %q", env.Table)
	}
	return evt, nil
}

func chatRow(c *storage.Chat) ChatRow {
	return ChatRow{
		ID:            c.ID,
		Participant1:  c.Participant1,
		Participant2:  c.Participant2,
		LastMessageAt: c.LastMessageAt,
	}
}

func messageRow(m *storage.ChatMessage) MessageRow {
	return MessageRow{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Message:   m.Preview(),
		CreatedAt: m.CreatedAt,
	}
}
