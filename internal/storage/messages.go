package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertMessage stores a message and bumps the chat's last_message_at in one
// transaction. Returns the stored row.
func (db *DB) InsertMessage(ctx context.Context, chatID, senderID, message string, imageURLs []string) (*ChatMessage, error) {
	if imageURLs == nil {
		imageURLs = []string{}
	}
	urls, err := json.Marshal(imageURLs)
	if err != nil {
		return nil, fmt.Errorf("encode image urls: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := &ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Message:   message,
		ImageURLs: imageURLs,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, sender_id, message, image_urls)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		m.ID, m.ChatID, m.SenderID, m.Message, urls).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET last_message_at = $2 WHERE id = $1`,
		chatID, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("bump chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return m, nil
}

// LatestMessages returns the most recent message per chat in a single query.
func (db *DB) LatestMessages(ctx context.Context, chatIDs []string) (map[string]ChatMessage, error) {
	latest := make(map[string]ChatMessage)
	if len(chatIDs) == 0 {
		return latest, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT ON (chat_id) id, chat_id, sender_id, message, image_urls, created_at
		FROM chat_messages
		WHERE chat_id::text = ANY($1)
		ORDER BY chat_id, created_at DESC`, chatIDs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m ChatMessage
		var urls []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Message, &urls, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(urls, &m.ImageURLs); err != nil {
			return nil, fmt.Errorf("decode image urls: %w", err)
		}
		latest[m.ChatID] = m
	}
	return latest, rows.Err()
}

// UnreadCounts returns, per chat, the number of messages sent by the other
// participant after the viewer's last-read watermark. One aggregated query,
// not one round trip per chat. Chats with no unread messages are absent.
func (db *DB) UnreadCounts(ctx context.Context, userID string, chatIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(chatIDs) == 0 {
		return counts, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT m.chat_id, COUNT(*)
		FROM chat_messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.chat_id::text = ANY($1)
		  AND m.sender_id <> $2
		  AND m.created_at > COALESCE(
			CASE WHEN c.participant_1 = $2 THEN c.last_read_p1 ELSE c.last_read_p2 END,
			'epoch'::timestamptz)
		GROUP BY m.chat_id`, chatIDs, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var chatID string
		var n int
		if err := rows.Scan(&chatID, &n); err != nil {
			return nil, err
		}
		counts[chatID] = n
	}
	return counts, rows.Err()
}

// MessagesForChat returns messages oldest-first, for the dev client and tests.
func (db *DB) MessagesForChat(ctx context.Context, chatID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, message, image_urls, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var urls []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Message, &urls, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(urls, &m.ImageURLs); err != nil {
			return nil, fmt.Errorf("decode image urls: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
