package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpsertPushToken registers a device token for a user. Multi-device: a user
// may hold many tokens; re-registering an existing one refreshes updated_at.
func (db *DB) UpsertPushToken(ctx context.Context, userID, expoPushToken string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO push_tokens (id, user_id, expo_push_token, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, expo_push_token) DO UPDATE SET updated_at = excluded.updated_at`,
		uuid.NewString(), userID, expoPushToken, time.Now().UTC())
	return err
}

// PushTokensForUser returns all device tokens registered for a user.
func (db *DB) PushTokensForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT expo_push_token FROM push_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
