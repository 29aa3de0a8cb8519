package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type fakeSource struct {
	invites []storage.MeetupInvite
	err     error
}

func (f *fakeSource) AcceptedInvitesForUser(context.Context, string) ([]storage.MeetupInvite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.invites, nil
}

type captureNotifier struct {
	sent []notify.LocalNotification
}

func (c *captureNotifier) Notify(_ context.Context, n notify.LocalNotification) error {
	c.sent = append(c.sent, n)
	return nil
}

var checkerNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func acceptedInvite(id string, startIn time.Duration) storage.MeetupInvite {
	start := checkerNow.Add(startIn)
	return storage.MeetupInvite{
		ID:            id,
		SenderID:      "me",
		RecipientID:   "friend",
		Location:      "Golden Gate Park",
		EventDate:     start.Format("2006-01-02"),
		EventTime:     start.Format("15:04:05"),
		Status:        storage.InviteAccepted,
		SenderName:    "Me",
		RecipientName: "Jordan",
	}
}

func testChecker(source Source, notifier notify.Notifier) *Checker {
	c := New(source, notifier, zap.NewNop(), 0, 0)
	c.now = func() time.Time { return checkerNow }
	return c
}

func TestCheckNotifiesWithinWindow(t *testing.T) {
	source := &fakeSource{invites: []storage.MeetupInvite{
		acceptedInvite("inv-soon", 45*time.Minute),
		acceptedInvite("inv-later", 3*time.Hour),
		acceptedInvite("inv-past", -10*time.Minute),
	}}
	notifier := &captureNotifier{}
	c := testChecker(source, notifier)

	if err := c.Check(context.Background(), "me"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Title != "⏰ Event Reminder" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.Body != "Your meetup with Jordan at Golden Gate Park starts in 45 minutes!" {
		t.Fatalf("body = %q", n.Body)
	}
	if n.Data["type"] != "event_reminder" || n.Data["meetingId"] != "inv-soon" {
		t.Fatalf("data = %v", n.Data)
	}
}

func TestCheckUsesViewerPerspectiveName(t *testing.T) {
	invite := acceptedInvite("inv-1", 30*time.Minute)
	source := &fakeSource{invites: []storage.MeetupInvite{invite}}
	notifier := &captureNotifier{}

	// The recipient should see the sender's name.
	if err := testChecker(source, notifier).Check(context.Background(), "friend"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if body := notifier.sent[0].Body; body != "Your meetup with Me at Golden Gate Park starts in 30 minutes!" {
		t.Fatalf("body = %q", body)
	}
}

func TestCheckNotifiesOncePerMeetup(t *testing.T) {
	source := &fakeSource{invites: []storage.MeetupInvite{acceptedInvite("inv-1", 30*time.Minute)}}
	notifier := &captureNotifier{}
	c := testChecker(source, notifier)

	for i := 0; i < 3; i++ {
		if err := c.Check(context.Background(), "me"); err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d notifications across sweeps, want 1", len(notifier.sent))
	}
}

func TestCheckPrunesDepartedMeetups(t *testing.T) {
	source := &fakeSource{invites: []storage.MeetupInvite{acceptedInvite("inv-1", 30*time.Minute)}}
	notifier := &captureNotifier{}
	c := testChecker(source, notifier)

	if err := c.Check(context.Background(), "me"); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// The meetup disappears from the accepted list, then reappears; the
	// dedup entry must have been dropped in between.
	source.invites = nil
	if err := c.Check(context.Background(), "me"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, ok := c.notified["inv-1"]; ok {
		t.Fatal("departed meetup still in dedup set")
	}

	source.invites = []storage.MeetupInvite{acceptedInvite("inv-1", 30*time.Minute)}
	if err := c.Check(context.Background(), "me"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(notifier.sent))
	}
}

func TestCheckSkipsUnparseableTimes(t *testing.T) {
	invite := acceptedInvite("inv-1", 30*time.Minute)
	invite.EventTime = "sevenish"
	source := &fakeSource{invites: []storage.MeetupInvite{invite}}
	notifier := &captureNotifier{}

	if err := testChecker(source, notifier).Check(context.Background(), "me"); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("sent %d notifications for unparseable invite", len(notifier.sent))
	}
}

func TestCheckReturnsSourceError(t *testing.T) {
	srcErr := errors.New("db down")
	c := testChecker(&fakeSource{err: srcErr}, &captureNotifier{})
	if err := c.Check(context.Background(), "me"); !errors.Is(err, srcErr) {
		t.Fatalf("Check error = %v, want %v", err, srcErr)
	}
}
