package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, invite_id, recipient_id, sender_id, job_type, run_at, event_start_at, status, created_at, updated_at`

// EnqueueJob stores a new pending notification job.
func (db *DB) EnqueueJob(ctx context.Context, job *NotificationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = JobPending
	return db.QueryRowContext(ctx, `
		INSERT INTO meetup_notification_jobs
			(id, invite_id, recipient_id, sender_id, job_type, run_at, event_start_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING created_at, updated_at`,
		job.ID, job.InviteID, job.RecipientID, job.SenderID, job.JobType, job.RunAt, job.EventStartAt).
		Scan(&job.CreatedAt, &job.UpdatedAt)
}

// ClaimDueJobs atomically claims up to limit due pending jobs, transitioning
// them to processing. Two overlapping processor invocations cannot claim the
// same row: the inner select locks candidates and the status guard excludes
// everything already claimed.
func (db *DB) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]NotificationJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		UPDATE meetup_notification_jobs j
		SET status = 'processing', updated_at = $1
		FROM (
			SELECT id FROM meetup_notification_jobs
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE j.id = due.id AND j.status = 'pending'
		RETURNING j.id, j.invite_id, j.recipient_id, j.sender_id, j.job_type,
		          j.run_at, j.event_start_at, j.status, j.created_at, j.updated_at`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []NotificationJob
	for rows.Next() {
		var j NotificationJob
		if err := rows.Scan(&j.ID, &j.InviteID, &j.RecipientID, &j.SenderID, &j.JobType,
			&j.RunAt, &j.EventStartAt, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FinishJob moves a claimed job to its terminal status. The processing guard
// means a job already finished (or never claimed) is left untouched.
func (db *DB) FinishJob(ctx context.Context, jobID string, status JobStatus, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE meetup_notification_jobs
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'`,
		jobID, status, now)
	return err
}

// CancelPendingJobs cancels all still-pending jobs for an invite. When
// jobTypes is non-empty only those types are touched. Returns the number of
// jobs canceled; canceling nothing is not an error.
func (db *DB) CancelPendingJobs(ctx context.Context, inviteID string, now time.Time, jobTypes ...JobType) (int64, error) {
	query := `
		UPDATE meetup_notification_jobs
		SET status = 'canceled', updated_at = $2
		WHERE invite_id = $1 AND status = 'pending'`
	args := []any{inviteID, now}
	if len(jobTypes) > 0 {
		types := make([]string, len(jobTypes))
		for i, t := range jobTypes {
			types[i] = string(t)
		}
		query += ` AND job_type = ANY($3)`
		args = append(args, types)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetJob returns a job by id, for tests and the dev surface.
func (db *DB) GetJob(ctx context.Context, jobID string) (*NotificationJob, error) {
	var j NotificationJob
	err := db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM meetup_notification_jobs WHERE id = $1`, jobID).
		Scan(&j.ID, &j.InviteID, &j.RecipientID, &j.SenderID, &j.JobType,
			&j.RunAt, &j.EventStartAt, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
