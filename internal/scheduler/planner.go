package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

const (
	inviteReminderLead = 3 * time.Hour
	finalReminderLead  = 5 * time.Minute
)

// Planner enqueues and cancels notification jobs as invites move through
// their lifecycle.
type Planner struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewPlanner creates a planner.
func NewPlanner(store Store, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{store: store, logger: logger, now: time.Now}
}

// InviteCreated schedules a nudge for the recipient three hours before the
// event, so a still-pending invite gets one last chance to be answered.
// Events starting too soon for the nudge get none.
func (p *Planner) InviteCreated(ctx context.Context, invite *storage.MeetupInvite) error {
	startsAt, err := invite.StartsAt()
	if err != nil {
		return fmt.Errorf("parse event start: %w", err)
	}
	runAt := startsAt.Add(-inviteReminderLead)
	if !runAt.After(p.now()) {
		p.logger.Debug("invite too close to event, no nudge scheduled",
			zap.String("invite_id", invite.ID))
		return nil
	}
	return p.enqueue(ctx, invite, storage.JobInviteReminder, runAt, startsAt)
}

// InviteAccepted retires the pending nudge and schedules the two event
// reminders for the recipient.
func (p *Planner) InviteAccepted(ctx context.Context, invite *storage.MeetupInvite) error {
	now := p.now()
	if _, err := p.store.CancelPendingJobs(ctx, invite.ID, now, storage.JobInviteReminder); err != nil {
		return fmt.Errorf("cancel invite nudge: %w", err)
	}

	startsAt, err := invite.StartsAt()
	if err != nil {
		return fmt.Errorf("parse event start: %w", err)
	}
	for _, plan := range []struct {
		jobType storage.JobType
		lead    time.Duration
	}{
		{storage.JobAcceptedReminder3h, inviteReminderLead},
		{storage.JobAcceptedReminder5m, finalReminderLead},
	} {
		runAt := startsAt.Add(-plan.lead)
		if !runAt.After(now) {
			continue
		}
		if err := p.enqueue(ctx, invite, plan.jobType, runAt, startsAt); err != nil {
			return err
		}
	}
	return nil
}

// InviteDeclined cancels every still-pending job for the invite.
func (p *Planner) InviteDeclined(ctx context.Context, invite *storage.MeetupInvite) error {
	if _, err := p.store.CancelPendingJobs(ctx, invite.ID, p.now()); err != nil {
		return fmt.Errorf("cancel invite jobs: %w", err)
	}
	return nil
}

func (p *Planner) enqueue(ctx context.Context, invite *storage.MeetupInvite, jobType storage.JobType, runAt, startsAt time.Time) error {
	job := &storage.NotificationJob{
		InviteID:     invite.ID,
		RecipientID:  invite.RecipientID,
		SenderID:     invite.SenderID,
		JobType:      jobType,
		RunAt:        runAt,
		EventStartAt: startsAt,
	}
	if err := p.store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	p.logger.Info("scheduled notification job",
		zap.String("invite_id", invite.ID),
		zap.String("job_type", string(jobType)),
		zap.Time("run_at", runAt))
	return nil
}
