// Package reminder implements the foreground "starting soon" safety net: a
// periodic sweep over the viewer's accepted meetups that raises a local
// notification for anything starting within the next hour. It runs
// independently of the server-side job scheduler and never writes to
// storage.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultLookahead = time.Hour
)

// Source lists the accepted invites the checker sweeps.
type Source interface {
	AcceptedInvitesForUser(ctx context.Context, userID string) ([]storage.MeetupInvite, error)
}

// Checker sweeps upcoming accepted meetups for one user and notifies once
// per meetup.
type Checker struct {
	source    Source
	notifier  notify.Notifier
	logger    *zap.Logger
	interval  time.Duration
	lookahead time.Duration
	now       func() time.Time

	// Only Run's goroutine touches notified.
	notified map[string]struct{}
}

// New creates a checker. Zero interval and lookahead select the defaults of
// five minutes and one hour.
func New(source Source, notifier notify.Notifier, logger *zap.Logger, interval, lookahead time.Duration) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if lookahead <= 0 {
		lookahead = defaultLookahead
	}
	return &Checker{
		source:    source,
		notifier:  notifier,
		logger:    logger,
		interval:  interval,
		lookahead: lookahead,
		now:       time.Now,
		notified:  map[string]struct{}{},
	}
}

// Run checks immediately and then on every tick until the context ends.
// Errors are logged; a failed sweep is retried on the next tick.
func (c *Checker) Run(ctx context.Context, userID string) {
	if err := c.Check(ctx, userID); err != nil {
		c.logger.Warn("reminder sweep failed", zap.Error(err))
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Check(ctx, userID); err != nil {
				c.logger.Warn("reminder sweep failed", zap.Error(err))
			}
		}
	}
}

// Check performs one sweep: every accepted meetup starting within the
// lookahead window that has not been notified yet produces a notification.
// IDs absent from the accepted list fall out of the dedup set, so it cannot
// grow without bound.
func (c *Checker) Check(ctx context.Context, userID string) error {
	invites, err := c.source.AcceptedInvitesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list accepted invites: %w", err)
	}

	now := c.now()
	horizon := now.Add(c.lookahead)
	current := make(map[string]struct{}, len(invites))

	for i := range invites {
		invite := &invites[i]
		current[invite.ID] = struct{}{}

		startsAt, err := invite.StartsAt()
		if err != nil {
			c.logger.Warn("unparseable event time",
				zap.String("invite_id", invite.ID), zap.Error(err))
			continue
		}
		if !startsAt.After(now) || startsAt.After(horizon) {
			continue
		}
		if _, done := c.notified[invite.ID]; done {
			continue
		}

		minutes := int(startsAt.Sub(now).Minutes())
		err = c.notifier.Notify(ctx, notify.LocalNotification{
			Title: "⏰ Event Reminder",
			Body: fmt.Sprintf("Your meetup with %s at %s starts in %d minutes!",
				invite.OtherPartyName(userID), invite.Location, minutes),
			Data: map[string]string{
				"type":      "event_reminder",
				"meetingId": invite.ID,
			},
		})
		if err != nil {
			c.logger.Warn("reminder notification failed",
				zap.String("invite_id", invite.ID), zap.Error(err))
			continue
		}
		c.notified[invite.ID] = struct{}{}
	}

	for id := range c.notified {
		if _, ok := current[id]; !ok {
			delete(c.notified, id)
		}
	}
	return nil
}
