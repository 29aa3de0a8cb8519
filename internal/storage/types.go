package storage

import (
	"fmt"
	"time"
)

// Chat is a two-party conversation row. Each participant has their own
// last-read watermark; unread counts are derived from it, never stored.
type Chat struct {
	ID            string
	Participant1  string
	Participant2  string
	LastReadP1    *time.Time
	LastReadP2    *time.Time
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID string) string {
	if c.Participant1 == userID {
		return c.Participant2
	}
	return c.Participant1
}

// LastReadFor returns userID's last-read watermark, nil if never read.
func (c *Chat) LastReadFor(userID string) *time.Time {
	if c.Participant1 == userID {
		return c.LastReadP1
	}
	return c.LastReadP2
}

// ChatMessage is a single message row.
type ChatMessage struct {
	ID        string
	ChatID    string
	SenderID  string
	Message   string
	ImageURLs []string
	CreatedAt time.Time
}

// Preview renders the message for a chat list row: image-only messages show
// as a photo placeholder.
func (m *ChatMessage) Preview() string {
	if len(m.ImageURLs) > 0 {
		return "📷 Photo"
	}
	return m.Message
}

// Profile is a user profile summary.
type Profile struct {
	ID        string
	Name      string
	AvatarURL string
}

// InviteStatus is the lifecycle state of a meetup invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// MeetupInvite is a proposed meetup between two users. Event date and time
// are stored as the client-formatted strings "2006-01-02" and "15:04[:05]".
type MeetupInvite struct {
	ID          string
	SenderID    string
	RecipientID string
	ChatID      string
	Location    string
	EventDate   string
	EventTime   string
	Status      InviteStatus
	CreatedAt   time.Time
	RespondedAt *time.Time

	// Party names, populated only by queries that join profiles.
	SenderName    string
	RecipientName string
}

// StartsAt combines EventDate and EventTime into the event start instant.
func (m *MeetupInvite) StartsAt() (time.Time, error) {
	combined := m.EventDate + "T" + m.EventTime
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, combined); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid event date/time %q", combined)
}

// OtherPartyName returns the display name of the participant that is not userID.
func (m *MeetupInvite) OtherPartyName(userID string) string {
	if m.SenderID == userID {
		return m.RecipientName
	}
	return m.SenderName
}

// JobType identifies which reminder a notification job delivers.
type JobType string

const (
	JobInviteReminder     JobType = "invite_reminder"
	JobAcceptedReminder3h JobType = "accepted_reminder_3h"
	JobAcceptedReminder5m JobType = "accepted_reminder_5m"
)

// JobStatus is the lifecycle state of a notification job. A job leaves
// pending exactly once: claimed to processing, then finished to one of the
// terminal statuses.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobSkipped    JobStatus = "skipped"
	JobCanceled   JobStatus = "canceled"
	JobError      JobStatus = "error"
)

// NotificationJob is a one-shot scheduled push tied to an invite's lifecycle.
type NotificationJob struct {
	ID           string
	InviteID     string
	RecipientID  string
	SenderID     string
	JobType      JobType
	RunAt        time.Time
	EventStartAt time.Time
	Status       JobStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PushToken addresses one installed app instance of a user.
type PushToken struct {
	UserID        string
	ExpoPushToken string
	UpdatedAt     time.Time
}
