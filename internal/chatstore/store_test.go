package chatstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/realtime"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type readCall struct {
	chatID string
	userID string
	at     time.Time
}

type fakeBackend struct {
	mu       sync.Mutex
	blocked  map[string]struct{}
	chats    []storage.Chat
	profiles map[string]storage.Profile
	latest   map[string]storage.ChatMessage
	counts   map[string]int

	fetches  int
	fetchErr error
	reads    chan readCall
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		blocked:  map[string]struct{}{},
		profiles: map[string]storage.Profile{},
		latest:   map[string]storage.ChatMessage{},
		counts:   map[string]int{},
		reads:    make(chan readCall, 8),
	}
}

func (f *fakeBackend) BlockedUserIDs(context.Context, string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.blocked, nil
}

func (f *fakeBackend) ChatsForUser(context.Context, string, int) ([]storage.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Chat, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

func (f *fakeBackend) ProfilesByID(context.Context, []string) (map[string]storage.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles, nil
}

func (f *fakeBackend) LatestMessages(context.Context, []string) (map[string]storage.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeBackend) UnreadCounts(context.Context, string, []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts, nil
}

func (f *fakeBackend) MarkChatRead(_ context.Context, chatID, userID string, at time.Time) error {
	f.reads <- readCall{chatID: chatID, userID: userID, at: at}
	return nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeBackend) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

type fakeFeed struct {
	mu   sync.Mutex
	ch   chan realtime.ChangeEvent
	subs int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan realtime.ChangeEvent, 8)}
}

func (f *fakeFeed) Subscribe(context.Context) <-chan realtime.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	return f.ch
}

func (f *fakeFeed) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

type fakeNotifier struct {
	ch chan notify.LocalNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan notify.LocalNotification, 8)}
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.LocalNotification) error {
	f.ch <- n
	return nil
}

func testStore(backend Backend, feed Feed, notifier notify.Notifier) *Store {
	s := New(backend, feed, notifier, zap.NewNop())
	s.throttle = 0
	return s
}

func TestFetchChatsBuildsPreviews(t *testing.T) {
	backend := newFakeBackend()
	backend.blocked["blocked-user"] = struct{}{}
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	backend.chats = []storage.Chat{
		{ID: "c1", Participant1: "me", Participant2: "alice", CreatedAt: created},
		{ID: "c2", Participant1: "blocked-user", Participant2: "me", CreatedAt: created},
		{ID: "c3", Participant1: "me", Participant2: "stranger", CreatedAt: created},
	}
	backend.profiles["alice"] = storage.Profile{ID: "alice", Name: "Alice", AvatarURL: "https://img/alice"}
	sent := created.Add(time.Hour)
	backend.latest["c1"] = storage.ChatMessage{ChatID: "c1", Message: "hey there", CreatedAt: sent}
	backend.counts["c1"] = 3

	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	if !s.Initialized() {
		t.Fatal("store not initialized after fetch")
	}

	chats := s.Chats()
	if len(chats) != 2 {
		t.Fatalf("got %d previews, want 2 (blocked chat excluded)", len(chats))
	}
	if chats[0].ID != "c1" {
		t.Fatalf("first preview = %q, want c1", chats[0].ID)
	}
	if chats[0].Name != "Alice" || chats[0].Avatar != "https://img/alice" {
		t.Fatalf("profile fields = %q/%q", chats[0].Name, chats[0].Avatar)
	}
	if chats[0].LastMessage != "hey there" || !chats[0].Timestamp.Equal(sent) {
		t.Fatalf("last message = %q at %v", chats[0].LastMessage, chats[0].Timestamp)
	}
	if chats[0].UnreadCount != 3 {
		t.Fatalf("unread = %d, want 3", chats[0].UnreadCount)
	}

	// Missing profile and empty chat fall back to placeholders.
	if chats[1].Name != "Unknown" {
		t.Fatalf("missing profile name = %q, want Unknown", chats[1].Name)
	}
	if chats[1].LastMessage != "No messages" || !chats[1].Timestamp.Equal(created) {
		t.Fatalf("empty chat preview = %q at %v", chats[1].LastMessage, chats[1].Timestamp)
	}
}

func TestFetchChatsPhotoPreview(t *testing.T) {
	backend := newFakeBackend()
	backend.chats = []storage.Chat{{ID: "c1", Participant1: "me", Participant2: "alice"}}
	backend.latest["c1"] = storage.ChatMessage{ChatID: "c1", ImageURLs: []string{"https://img/1"}}

	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	if got := s.Chats()[0].LastMessage; got != "📷 Photo" {
		t.Fatalf("image-only preview = %q", got)
	}
}

func TestFetchChatsActiveChatUnreadZero(t *testing.T) {
	backend := newFakeBackend()
	backend.chats = []storage.Chat{
		{ID: "c1", Participant1: "me", Participant2: "alice"},
		{ID: "c2", Participant1: "me", Participant2: "bob"},
	}
	backend.counts["c1"] = 4
	backend.counts["c2"] = 2

	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	s.SetActiveChat("c1")
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}

	chats := s.Chats()
	if chats[0].UnreadCount != 0 {
		t.Fatalf("active chat unread = %d, want 0", chats[0].UnreadCount)
	}
	if chats[1].UnreadCount != 2 {
		t.Fatalf("other chat unread = %d, want 2", chats[1].UnreadCount)
	}
}

func TestFetchChatsThrottled(t *testing.T) {
	backend := newFakeBackend()
	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	s.throttle = 1500 * time.Millisecond

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		if err := s.FetchChats(context.Background(), "me"); err != nil {
			t.Fatalf("FetchChats: %v", err)
		}
		now = now.Add(100 * time.Millisecond)
	}
	if got := backend.fetchCount(); got != 1 {
		t.Fatalf("backend fetched %d times within throttle window, want 1", got)
	}

	now = now.Add(2 * time.Second)
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	if got := backend.fetchCount(); got != 2 {
		t.Fatalf("backend fetched %d times after window passed, want 2", got)
	}
}

func TestFetchFailureRetainsPreviews(t *testing.T) {
	backend := newFakeBackend()
	backend.chats = []storage.Chat{{ID: "c1", Participant1: "me", Participant2: "alice"}}

	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}

	fetchErr := errors.New("backend down")
	backend.setFetchErr(fetchErr)
	if err := s.FetchChats(context.Background(), "me"); !errors.Is(err, fetchErr) {
		t.Fatalf("FetchChats error = %v, want %v", err, fetchErr)
	}

	if got := s.Chats(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("previews lost after failed fetch: %+v", got)
	}
	if !errors.Is(s.LastError(), fetchErr) {
		t.Fatalf("LastError = %v", s.LastError())
	}
	if !s.Initialized() {
		t.Fatal("initialized flag lost after failed fetch")
	}
}

func TestMarkAsReadOptimistic(t *testing.T) {
	backend := newFakeBackend()
	backend.chats = []storage.Chat{{ID: "c1", Participant1: "me", Participant2: "alice"}}
	backend.counts["c1"] = 5

	s := testStore(backend, newFakeFeed(), newFakeNotifier())
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}

	s.MarkAsRead(context.Background(), "c1", "me")
	if got := s.Chats()[0].UnreadCount; got != 0 {
		t.Fatalf("unread after MarkAsRead = %d, want 0 immediately", got)
	}

	s.MarkAsRead(context.Background(), "c1", "me")

	var calls []readCall
	for i := 0; i < 2; i++ {
		select {
		case call := <-backend.reads:
			calls = append(calls, call)
		case <-time.After(2 * time.Second):
			t.Fatalf("read marker %d never persisted", i)
		}
	}
	for _, call := range calls {
		if call.chatID != "c1" || call.userID != "me" {
			t.Fatalf("persisted %+v", call)
		}
	}
}

func TestSubscribeNotifiesOnForeignMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.chats = []storage.Chat{
		{ID: "c1", Participant1: "me", Participant2: "alice"},
		{ID: "c2", Participant1: "me", Participant2: "bob"},
	}
	backend.profiles["alice"] = storage.Profile{ID: "alice", Name: "Alice"}
	backend.profiles["bob"] = storage.Profile{ID: "bob", Name: "Bob"}

	feed := newFakeFeed()
	notifier := newFakeNotifier()
	s := testStore(backend, feed, notifier)
	if err := s.FetchChats(context.Background(), "me"); err != nil {
		t.Fatalf("FetchChats: %v", err)
	}
	s.SetActiveChat("c2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx, "me")
	defer s.Unsubscribe()

	// Own messages and messages in the open chat stay silent.
	feed.ch <- realtime.ChangeEvent{Table: "chat_messages", Type: "INSERT",
		Message: &realtime.MessageRow{ChatID: "c1", SenderID: "me", Message: "mine"}}
	feed.ch <- realtime.ChangeEvent{Table: "chat_messages", Type: "INSERT",
		Message: &realtime.MessageRow{ChatID: "c2", SenderID: "bob", Message: "open chat"}}
	feed.ch <- realtime.ChangeEvent{Table: "chat_messages", Type: "INSERT",
		Message: &realtime.MessageRow{ChatID: "c1", SenderID: "alice", Message: "hello!"}}

	select {
	case n := <-notifier.ch:
		if n.Title != "New message from Alice" {
			t.Fatalf("title = %q", n.Title)
		}
		if n.Body != "hello!" {
			t.Fatalf("body = %q", n.Body)
		}
		if n.Data["type"] != "new_message" || n.Data["chat_id"] != "c1" {
			t.Fatalf("data = %v", n.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification for foreign message")
	}

	select {
	case n := <-notifier.ch:
		t.Fatalf("unexpected extra notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	feed := newFakeFeed()
	s := testStore(newFakeBackend(), feed, newFakeNotifier())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Subscribe(ctx, "me")
	s.Subscribe(ctx, "me")
	if got := feed.subscriptions(); got != 1 {
		t.Fatalf("feed subscribed %d times, want 1", got)
	}

	s.Unsubscribe()
	s.Unsubscribe()

	s.Subscribe(ctx, "me")
	if got := feed.subscriptions(); got != 2 {
		t.Fatalf("feed subscribed %d times after resubscribe, want 2", got)
	}
}
