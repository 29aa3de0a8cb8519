package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type fakeChatSource struct {
	chats map[string]*storage.Chat
}

func (f *fakeChatSource) GetChat(_ context.Context, chatID string) (*storage.Chat, error) {
	return f.chats[chatID], nil
}

func testHubServer(t *testing.T, chats *fakeChatSource, b *bus.Bus) (*Hub, string) {
	t.Helper()
	hub := NewHub(chats, b, zap.NewNop())
	hub.Start(context.Background())
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitEvent(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("feed channel closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed event")
	}
	return ChangeEvent{}
}

func TestHubDeliversChatEventsToParticipants(t *testing.T) {
	b := bus.New()
	chat := storage.Chat{ID: "c1", Participant1: "alice", Participant2: "bob"}
	_, url := testHubServer(t, &fakeChatSource{chats: map[string]*storage.Chat{"c1": &chat}}, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bobFeed := NewSubscriber(url+"?user_id=bob", zap.NewNop(), nil).Subscribe(ctx)
	carolFeed := NewSubscriber(url+"?user_id=carol", zap.NewNop(), nil).Subscribe(ctx)

	// Give both connections a moment to register before publishing.
	time.Sleep(100 * time.Millisecond)

	b.Publish(bus.NewChange(bus.KindChatInserted, "chats", "INSERT", chat))

	evt := waitEvent(t, bobFeed)
	if evt.Table != "chats" || evt.Type != "INSERT" {
		t.Errorf("got %s %s, want chats INSERT", evt.Table, evt.Type)
	}
	if evt.Chat == nil || evt.Chat.ID != "c1" {
		t.Errorf("chat row = %+v, want id c1", evt.Chat)
	}

	// Carol is not a participant and must not see the event.
	select {
	case evt := <-carolFeed:
		t.Errorf("non-participant received event: %+v", evt)
	case <-time.After(200 * time.Millisecond):
		// Expected.
	}
}

func TestHubRoutesMessageEventsByChatParticipants(t *testing.T) {
	b := bus.New()
	chat := storage.Chat{ID: "c1", Participant1: "alice", Participant2: "bob"}
	_, url := testHubServer(t, &fakeChatSource{chats: map[string]*storage.Chat{"c1": &chat}}, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var states []State
	sub := NewSubscriber(url+"?user_id=bob", zap.NewNop(), func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	feed := sub.Subscribe(ctx)
	time.Sleep(100 * time.Millisecond)

	msg := storage.ChatMessage{ID: "m1", ChatID: "c1", SenderID: "alice", Message: "hello"}
	b.Publish(bus.NewChange(bus.KindMessageInserted, "chat_messages", "INSERT", msg))

	evt := waitEvent(t, feed)
	if evt.Message == nil || evt.Message.ChatID != "c1" || evt.Message.SenderID != "alice" {
		t.Errorf("message row = %+v, want chat c1 from alice", evt.Message)
	}

	mu.Lock()
	sawLive := false
	for _, s := range states {
		if s == StateLive {
			sawLive = true
		}
	}
	mu.Unlock()
	if !sawLive {
		t.Error("subscriber never reported StateLive")
	}
}

func TestSubscriberClosesOnCancel(t *testing.T) {
	b := bus.New()
	_, url := testHubServer(t, &fakeChatSource{chats: map[string]*storage.Chat{}}, b)

	ctx, cancel := context.WithCancel(context.Background())
	feed := NewSubscriber(url+"?user_id=bob", zap.NewNop(), nil).Subscribe(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed after cancel")
	}
}

func TestSubscriberDisconnectsAfterRetriesExhaust(t *testing.T) {
	var mu sync.Mutex
	var states []State
	// Nothing listens on this port; every dial fails.
	sub := NewSubscriber("ws://127.0.0.1:1/ws?user_id=bob", zap.NewNop(), func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	sub.initialBackoff = time.Millisecond
	sub.maxBackoff = 2 * time.Millisecond
	sub.maxRetries = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := sub.Subscribe(ctx)

	select {
	case _, ok := <-feed:
		if ok {
			t.Fatal("expected closed channel after retry exhaustion")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed after retry exhaustion")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[len(states)-1] != StateDisconnected {
		t.Errorf("states = %v, want final StateDisconnected", states)
	}
}

func TestDecodeRejectsUnknownTable(t *testing.T) {
	_, err := Decode(Envelope{Table: "profiles", New: []byte(`{}`)})
	if err == nil {
		t.Error("expected error for unknown table")
	}
}
