package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyResponded is returned when responding to an invite that already
// left the pending state. An invite transitions out of pending exactly once.
var ErrAlreadyResponded = errors.New("invite already responded")

const inviteColumns = `id, sender_id, recipient_id, chat_id, location, event_date, event_time, status, created_at, responded_at`

func scanInvite(row interface{ Scan(...any) error }) (*MeetupInvite, error) {
	var m MeetupInvite
	var chatID sql.NullString
	var respondedAt sql.NullTime
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &chatID, &m.Location,
		&m.EventDate, &m.EventTime, &m.Status, &m.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	m.ChatID = chatID.String
	if respondedAt.Valid {
		m.RespondedAt = &respondedAt.Time
	}
	return &m, nil
}

// CreateInvite stores a new pending meetup invite.
func (db *DB) CreateInvite(ctx context.Context, inv *MeetupInvite) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Status = InvitePending
	var chatID any
	if inv.ChatID != "" {
		chatID = inv.ChatID
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO meetup_invites (id, sender_id, recipient_id, chat_id, location, event_date, event_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING created_at`,
		inv.ID, inv.SenderID, inv.RecipientID, chatID, inv.Location, inv.EventDate, inv.EventTime).
		Scan(&inv.CreatedAt)
}

// GetInvite returns an invite by id, nil if missing.
func (db *DB) GetInvite(ctx context.Context, inviteID string) (*MeetupInvite, error) {
	inv, err := scanInvite(db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM meetup_invites WHERE id = $1`, inviteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

// RespondInvite transitions a pending invite to accepted or declined. The
// guarded update enforces the exactly-once transition: responses to an
// invite that already left pending return ErrAlreadyResponded.
func (db *DB) RespondInvite(ctx context.Context, inviteID string, status InviteStatus, at time.Time) error {
	if status != InviteAccepted && status != InviteDeclined {
		return fmt.Errorf("invalid response status %q", status)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE meetup_invites SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'`,
		inviteID, status, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyResponded
	}
	return nil
}

// AcceptedInvitesForUser returns all accepted invites the user participates
// in, with both party names joined for reminder copy.
func (db *DB) AcceptedInvitesForUser(ctx context.Context, userID string) ([]MeetupInvite, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.sender_id, i.recipient_id, i.chat_id, i.location,
		       i.event_date, i.event_time, i.status, i.created_at, i.responded_at,
		       s.name, r.name
		FROM meetup_invites i
		JOIN profiles s ON s.id = i.sender_id
		JOIN profiles r ON r.id = i.recipient_id
		WHERE i.status = 'accepted'
		  AND (i.sender_id = $1 OR i.recipient_id = $1)`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var invites []MeetupInvite
	for rows.Next() {
		var m MeetupInvite
		var chatID sql.NullString
		var respondedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &chatID, &m.Location,
			&m.EventDate, &m.EventTime, &m.Status, &m.CreatedAt, &respondedAt,
			&m.SenderName, &m.RecipientName); err != nil {
			return nil, err
		}
		m.ChatID = chatID.String
		if respondedAt.Valid {
			m.RespondedAt = &respondedAt.Time
		}
		invites = append(invites, m)
	}
	return invites, rows.Err()
}

// PurgeExpiredInvites deletes invites whose event date is before cutoff
// (callers pass now minus the retention window). Notification jobs go with
// them via FK cascade. Returns the number of invites removed.
func (db *DB) PurgeExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM meetup_invites WHERE event_date < $1`,
		cutoff.Format("2006-01-02"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
