package api

import (
	"net/http"
	"time"

	"github.com/activityhub/activityhub/internal/bus"
	"github.com/activityhub/activityhub/internal/chatstore"
	"go.uber.org/zap"
)

type chatPreviewResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LastMessage string    `json:"last_message"`
	Timestamp   time.Time `json:"timestamp"`
	UnreadCount int       `json:"unread_count"`
	Avatar      string    `json:"avatar,omitempty"`
	OtherUserID string    `json:"other_user_id"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	previews, err := chatstore.BuildPreviews(r.Context(), s.store, userID, r.URL.Query().Get("active_chat_id"))
	if err != nil {
		s.logger.Error("list chats failed", zap.Error(err), zap.String("user_id", userID))
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	out := make([]chatPreviewResponse, len(previews))
	for i, p := range previews {
		out[i] = chatPreviewResponse{
			ID:          p.ID,
			Name:        p.Name,
			LastMessage: p.LastMessage,
			Timestamp:   p.Timestamp,
			UnreadCount: p.UnreadCount,
			Avatar:      p.Avatar,
			OtherUserID: p.OtherUserID,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

type markReadRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	var req markReadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	chat, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		s.logger.Error("load chat failed", zap.Error(err), zap.String("chat_id", chatID))
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if chat.Participant1 != req.UserID && chat.Participant2 != req.UserID {
		writeError(w, http.StatusForbidden, "user is not a chat participant")
		return
	}

	if err := s.store.MarkChatRead(r.Context(), chatID, req.UserID, time.Now()); err != nil {
		s.logger.Error("mark read failed", zap.Error(err), zap.String("chat_id", chatID))
		writeError(w, http.StatusInternalServerError, "failed to mark chat read")
		return
	}

	// Other devices of the same user learn about the read through the feed.
	if updated, err := s.store.GetChat(r.Context(), chatID); err == nil && updated != nil {
		s.bus.Publish(bus.NewChange(bus.KindChatUpdated, "chats", "UPDATE", updated))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
