package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// ChatSource resolves a chat's participants for message-event routing.
type ChatSource interface {
	GetChat(ctx context.Context, chatID string) (*storage.Chat, error)
}

// Hub fans change.* bus events out to WebSocket subscribers. Each connection
// is scoped to one user id and only receives events for rows that user
// participates in.
type Hub struct {
	chats  ChatSource
	bus    *bus.Bus
	logger *zap.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*hubConn]struct{}
	cancel context.CancelFunc
}

type hubConn struct {
	ws     *websocket.Conn
	userID string
	send   chan Envelope
}

// NewHub creates a hub relaying the bus change feed.
func NewHub(chats ChatSource, b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		chats:  chats,
		bus:    b,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*hubConn]struct{}),
	}
}

// Start begins relaying bus events to connections.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("change.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.relay(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the relay loop and closes all connections.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		close(c.send)
		delete(h.conns, c)
	}
}

func (h *Hub) relay(ctx context.Context, evt bus.Event) {
	change, ok := evt.Payload.(bus.Change)
	if !ok {
		return
	}

	var row any
	var audience []string
	switch n := change.New.(type) {
	case storage.Chat:
		row = chatRow(&n)
		audience = []string{n.Participant1, n.Participant2}
	case *storage.Chat:
		row = chatRow(n)
		audience = []string{n.Participant1, n.Participant2}
	case storage.ChatMessage:
		row = messageRow(&n)
		audience = h.messageAudience(ctx, n.ChatID)
	case *storage.ChatMessage:
		row = messageRow(n)
		audience = h.messageAudience(ctx, n.ChatID)
	default:
		return
	}

	payload, err := json.Marshal(row)
	if err != nil {
		h.logger.Error("failed to encode change row", zap.Error(err))
		return
	}
	env := Envelope{
		ID:    uuid.NewString(),
		Table: change.Table,
		Type:  change.Type,
		New:   payload,
		TS:    evt.Timestamp,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if !contains(audience, c.userID) {
			continue
		}
		select {
		case c.send <- env:
		default:
			// Drop event if the connection is too slow to keep up.
		}
	}
}

func (h *Hub) messageAudience(ctx context.Context, chatID string) []string {
	chat, err := h.chats.GetChat(ctx, chatID)
	if err != nil || chat == nil {
		if err != nil {
			h.logger.Error("failed to resolve message audience", zap.Error(err), zap.String("chat_id", chatID))
		}
		return nil
	}
	return []string{chat.Participant1, chat.Participant2}
}

// ServeWS upgrades the request to a change-feed connection scoped to the
// user_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hubConn{ws: ws, userID: userID, send: make(chan Envelope, sendBuffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("feed subscriber connected", zap.String("user_id", userID))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; the feed is one-way. Returning on error
// detects the peer going away.
func (h *Hub) readLoop(c *hubConn) {
	defer func() {
		h.drop(c)
		_ = c.ws.Close()
	}()
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
