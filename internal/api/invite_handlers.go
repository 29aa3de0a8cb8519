package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type createInviteRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id,omitempty"`
	Location    string `json:"location"`
	EventDate   string `json:"event_date"`
	EventTime   string `json:"event_time"`
}

type inviteResponse struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id,omitempty"`
	Location    string `json:"location"`
	EventDate   string `json:"event_date"`
	EventTime   string `json:"event_time"`
	Status      string `json:"status"`
}

func inviteToResponse(inv *storage.MeetupInvite) inviteResponse {
	return inviteResponse{
		ID:          inv.ID,
		SenderID:    inv.SenderID,
		RecipientID: inv.RecipientID,
		ChatID:      inv.ChatID,
		Location:    inv.Location,
		EventDate:   inv.EventDate,
		EventTime:   inv.EventTime,
		Status:      string(inv.Status),
	}
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SenderID == "" || req.RecipientID == "" || req.Location == "" ||
		req.EventDate == "" || req.EventTime == "" {
		writeError(w, http.StatusBadRequest, "sender_id, recipient_id, location, event_date and event_time required")
		return
	}

	invite := &storage.MeetupInvite{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		ChatID:      req.ChatID,
		Location:    req.Location,
		EventDate:   req.EventDate,
		EventTime:   req.EventTime,
	}
	if _, err := invite.StartsAt(); err != nil {
		writeError(w, http.StatusBadRequest, "event_date/event_time not parseable")
		return
	}
	if err := s.store.CreateInvite(r.Context(), invite); err != nil {
		s.logger.Error("create invite failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	// The invite exists either way; a planning failure only costs the nudge.
	if err := s.planner.InviteCreated(r.Context(), invite); err != nil {
		s.logger.Error("invite job planning failed", zap.Error(err), zap.String("invite_id", invite.ID))
	}

	writeJSON(w, http.StatusCreated, inviteToResponse(invite))
}

type respondInviteRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (s *Server) handleRespondInvite(w http.ResponseWriter, r *http.Request) {
	inviteID := r.PathValue("id")
	var req respondInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status := storage.InviteStatus(req.Status)
	if status != storage.InviteAccepted && status != storage.InviteDeclined {
		writeError(w, http.StatusBadRequest, `status must be "accepted" or "declined"`)
		return
	}

	invite, err := s.store.GetInvite(r.Context(), inviteID)
	if err != nil {
		s.logger.Error("load invite failed", zap.Error(err), zap.String("invite_id", inviteID))
		writeError(w, http.StatusInternalServerError, "failed to load invite")
		return
	}
	if invite == nil {
		writeError(w, http.StatusNotFound, "invite not found")
		return
	}
	if invite.RecipientID != req.UserID {
		writeError(w, http.StatusForbidden, "only the recipient can respond")
		return
	}

	err = s.store.RespondInvite(r.Context(), inviteID, status, time.Now())
	if errors.Is(err, storage.ErrAlreadyResponded) {
		writeError(w, http.StatusConflict, "invite already responded to")
		return
	}
	if err != nil {
		s.logger.Error("respond invite failed", zap.Error(err), zap.String("invite_id", inviteID))
		writeError(w, http.StatusInternalServerError, "failed to respond to invite")
		return
	}
	invite.Status = status

	var planErr error
	if status == storage.InviteAccepted {
		planErr = s.planner.InviteAccepted(r.Context(), invite)
	} else {
		planErr = s.planner.InviteDeclined(r.Context(), invite)
	}
	if planErr != nil {
		s.logger.Error("invite job replanning failed", zap.Error(planErr), zap.String("invite_id", inviteID))
	}

	writeJSON(w, http.StatusOK, inviteToResponse(invite))
}
