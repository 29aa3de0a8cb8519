package storage

import (
	"context"
	"database/sql"
	"errors"
)

// UpsertProfile inserts or updates a profile summary.
func (db *DB) UpsertProfile(ctx context.Context, p *Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE profiles.name END,
			avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE profiles.avatar_url END`,
		p.ID, p.Name, p.AvatarURL)
	return err
}

// ProfilesByID batch-fetches profile summaries keyed by id.
func (db *DB) ProfilesByID(ctx context.Context, ids []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile)
	if len(ids) == 0 {
		return profiles, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, avatar_url FROM profiles WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.AvatarURL); err != nil {
			return nil, err
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}

// ProfileName returns a user's display name, empty string if missing.
func (db *DB) ProfileName(ctx context.Context, userID string) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM profiles WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}
