package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBlocked is returned when a chat cannot be created because one
// participant has blocked the other.
var ErrBlocked = errors.New("user is blocked")

const chatColumns = `id, participant_1, participant_2, last_read_p1, last_read_p2, last_message_at, created_at`

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var c Chat
	var lastReadP1, lastReadP2 sql.NullTime
	err := row.Scan(&c.ID, &c.Participant1, &c.Participant2, &lastReadP1, &lastReadP2, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastReadP1.Valid {
		c.LastReadP1 = &lastReadP1.Time
	}
	if lastReadP2.Valid {
		c.LastReadP2 = &lastReadP2.Time
	}
	return &c, nil
}

// GetChat returns a single chat by id, nil if missing.
func (db *DB) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	c, err := scanChat(db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ChatForPair returns the chat between two users regardless of participant
// order, nil if none exists.
func (db *DB) ChatForPair(ctx context.Context, userA, userB string) (*Chat, error) {
	c, err := scanChat(db.QueryRowContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE (participant_1 = $1 AND participant_2 = $2)
		   OR (participant_1 = $2 AND participant_2 = $1)`,
		userA, userB))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// GetOrCreateChat returns the existing chat between the two users or creates
// one. Returns ErrBlocked when either direction of a block exists. The
// second result reports whether a new row was created.
func (db *DB) GetOrCreateChat(ctx context.Context, userA, userB string) (*Chat, bool, error) {
	blocked, err := db.blockedEitherWay(ctx, userA, userB)
	if err != nil {
		return nil, false, fmt.Errorf("check blocks: %w", err)
	}
	if blocked {
		return nil, false, ErrBlocked
	}

	existing, err := db.ChatForPair(ctx, userA, userB)
	if err != nil {
		return nil, false, fmt.Errorf("find chat: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	c, err := scanChat(db.QueryRowContext(ctx, `
		INSERT INTO chats (id, participant_1, participant_2)
		VALUES ($1, $2, $3)
		RETURNING `+chatColumns,
		uuid.NewString(), userA, userB))
	if err != nil {
		// A concurrent insert for the same pair loses the unique race;
		// fall back to reading the winner's row.
		if fallback, ferr := db.ChatForPair(ctx, userA, userB); ferr == nil && fallback != nil {
			return fallback, false, nil
		}
		return nil, false, fmt.Errorf("create chat: %w", err)
	}
	return c, true, nil
}

// ChatsForUser returns the user's chats newest-first, capped at limit.
func (db *DB) ChatsForUser(ctx context.Context, userID string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE participant_1 = $1 OR participant_2 = $1
		ORDER BY last_message_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// MarkChatRead persists the viewer's last-read watermark on the chat row,
// picking the participant-specific column. A no-op for non-participants.
func (db *DB) MarkChatRead(ctx context.Context, chatID, userID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE chats SET
			last_read_p1 = CASE WHEN participant_1 = $2 THEN $3 ELSE last_read_p1 END,
			last_read_p2 = CASE WHEN participant_2 = $2 THEN $3 ELSE last_read_p2 END
		WHERE id = $1`,
		chatID, userID, at)
	return err
}

// BlockUser records that userID blocked blockedUserID. Idempotent.
func (db *DB) BlockUser(ctx context.Context, userID, blockedUserID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO blocked_users (id, user_id, blocked_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, blocked_user_id) DO NOTHING`,
		uuid.NewString(), userID, blockedUserID)
	return err
}

// BlockedUserIDs returns the set of user ids the viewer has blocked.
func (db *DB) BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT blocked_user_id FROM blocked_users WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	blocked := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		blocked[id] = struct{}{}
	}
	return blocked, rows.Err()
}

func (db *DB) blockedEitherWay(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_users
			WHERE (user_id = $1 AND blocked_user_id = $2)
			   OR (user_id = $2 AND blocked_user_id = $1)
		)`, userA, userB).Scan(&exists)
	return exists, err
}
