package api

import (
	"errors"
	"net/http"

	"github.com/activityhub/activityhub/internal/messaging"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	SenderID    string   `json:"sender_id"`
	RecipientID string   `json:"recipient_id,omitempty"`
	ChatID      string   `json:"chat_id,omitempty"`
	Message     string   `json:"message"`
	ImageURLs   []string `json:"image_urls,omitempty"`
}

type messageResponse struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chat_id"`
	SenderID  string   `json:"sender_id"`
	Message   string   `json:"message"`
	ImageURLs []string `json:"image_urls,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "sender_id required")
		return
	}
	if req.Message == "" && len(req.ImageURLs) == 0 {
		writeError(w, http.StatusBadRequest, "message or image_urls required")
		return
	}

	var (
		msg *storage.ChatMessage
		err error
	)
	switch {
	case req.ChatID != "":
		msg, err = s.messenger.SendToChat(r.Context(), req.ChatID, req.SenderID, req.Message, req.ImageURLs)
	case req.RecipientID != "":
		msg, err = s.messenger.SendToUser(r.Context(), req.SenderID, req.RecipientID, req.Message, req.ImageURLs)
	default:
		writeError(w, http.StatusBadRequest, "chat_id or recipient_id required")
		return
	}
	switch {
	case errors.Is(err, storage.ErrBlocked):
		writeError(w, http.StatusForbidden, "messaging is blocked between these users")
		return
	case errors.Is(err, messaging.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
		return
	case errors.Is(err, messaging.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "sender is not a chat participant")
		return
	case err != nil:
		s.logger.Error("send message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Message:   msg.Message,
		ImageURLs: msg.ImageURLs,
		CreatedAt: msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
	})
}
