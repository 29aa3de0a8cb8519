// Package scheduler plans and processes meetup notification jobs: the
// planner enqueues dated jobs when invites change, the processor drains due
// jobs and pushes the reminders.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/activityhub/activityhub/internal/push"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

// Store is the persistence surface the scheduler works against.
type Store interface {
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]storage.NotificationJob, error)
	FinishJob(ctx context.Context, jobID string, status storage.JobStatus, now time.Time) error
	GetInvite(ctx context.Context, inviteID string) (*storage.MeetupInvite, error)
	ProfileName(ctx context.Context, userID string) (string, error)
	PushTokensForUser(ctx context.Context, userID string) ([]string, error)
	EnqueueJob(ctx context.Context, job *storage.NotificationJob) error
	CancelPendingJobs(ctx context.Context, inviteID string, now time.Time, jobTypes ...storage.JobType) (int64, error)
}

// Processor drains due notification jobs and delivers their pushes.
type Processor struct {
	store     Store
	gateway   push.Gateway
	logger    *zap.Logger
	batchSize int
	now       func() time.Time
}

// NewProcessor creates a processor claiming up to batchSize jobs per run.
func NewProcessor(store Store, gateway push.Gateway, logger *zap.Logger, batchSize int) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Processor{
		store:     store,
		gateway:   gateway,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run claims the jobs due now and works each one to a terminal status. It
// returns how many jobs were claimed; per-job failures become the job's
// status, not an error. Overlapping runs are safe, the claim is atomic.
func (p *Processor) Run(ctx context.Context) (int, error) {
	now := p.now()
	jobs, err := p.store.ClaimDueJobs(ctx, now, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	for _, job := range jobs {
		status := p.process(ctx, &job, now)
		if err := p.store.FinishJob(ctx, job.ID, status, p.now()); err != nil {
			p.logger.Error("failed to finish job",
				zap.Error(err), zap.String("job_id", job.ID), zap.String("status", string(status)))
			continue
		}
		p.logger.Info("processed notification job",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.JobType)),
			zap.String("status", string(status)))
	}
	return len(jobs), nil
}

// process decides the terminal status of one claimed job. The checks run in
// a fixed order: stale event, vanished invite, stale invite status, missing
// tokens, delivery.
func (p *Processor) process(ctx context.Context, job *storage.NotificationJob, now time.Time) storage.JobStatus {
	// A reminder for an event that already started is noise, even if the
	// job itself was due long ago.
	if !job.EventStartAt.IsZero() && !job.EventStartAt.After(now) {
		return storage.JobCanceled
	}

	invite, err := p.store.GetInvite(ctx, job.InviteID)
	if err != nil {
		p.logger.Error("failed to load invite", zap.Error(err), zap.String("job_id", job.ID))
		return storage.JobCanceled
	}
	if invite == nil {
		return storage.JobCanceled
	}

	// The invite's status must still match what the job was scheduled for.
	if job.JobType == storage.JobInviteReminder && invite.Status != storage.InvitePending {
		return storage.JobCanceled
	}
	if job.JobType != storage.JobInviteReminder && invite.Status != storage.InviteAccepted {
		return storage.JobCanceled
	}

	senderName, err := p.store.ProfileName(ctx, invite.SenderID)
	if err != nil {
		p.logger.Warn("failed to load sender name", zap.Error(err), zap.String("job_id", job.ID))
	}
	if senderName == "" {
		senderName = "someone"
	}

	title, body, data := compose(job.JobType, invite, senderName)

	tokens, err := p.store.PushTokensForUser(ctx, invite.RecipientID)
	if err != nil {
		p.logger.Error("failed to load push tokens", zap.Error(err), zap.String("job_id", job.ID))
		return storage.JobSkipped
	}
	if len(tokens) == 0 {
		return storage.JobSkipped
	}

	notifications := make([]push.Notification, len(tokens))
	for i, token := range tokens {
		notifications[i] = push.Notification{To: token, Title: title, Body: body, Data: data}
	}
	if err := p.gateway.Send(ctx, notifications); err != nil {
		p.logger.Error("push delivery failed", zap.Error(err), zap.String("job_id", job.ID))
		return storage.JobError
	}
	return storage.JobSent
}

func compose(jobType storage.JobType, invite *storage.MeetupInvite, senderName string) (title, body string, data map[string]string) {
	switch jobType {
	case storage.JobInviteReminder:
		title = "Quick check!"
		body = fmt.Sprintf("%s waiting to hear from you. %s in 3 hours.", senderName, invite.Location)
		data = map[string]string{"type": "invite_reminder", "inviteId": invite.ID}
	case storage.JobAcceptedReminder3h:
		title = "Plan set!"
		body = fmt.Sprintf("%s in 3 hours. Lets go.", invite.Location)
		data = map[string]string{"type": "event_reminder", "meetingId": invite.ID}
	default:
		title = "Lets roll"
		body = fmt.Sprintf("%s. 5 minutes.", invite.Location)
		data = map[string]string{"type": "event_reminder", "meetingId": invite.ID}
	}
	return title, body, data
}
