package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleProcessJobs is the HTTP equivalent of the scheduled function
// invocation: drain everything due right now.
func (s *Server) handleProcessJobs(w http.ResponseWriter, r *http.Request) {
	count, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("job processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch jobs")
		return
	}
	if count == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No jobs due"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Processed jobs", "count": count})
}

type upsertTokenRequest struct {
	UserID        string `json:"user_id"`
	ExpoPushToken string `json:"expo_push_token"`
}

func (s *Server) handleUpsertPushToken(w http.ResponseWriter, r *http.Request) {
	var req upsertTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ExpoPushToken == "" {
		writeError(w, http.StatusBadRequest, "user_id and expo_push_token required")
		return
	}
	if err := s.store.UpsertPushToken(r.Context(), req.UserID, req.ExpoPushToken); err != nil {
		s.logger.Error("upsert push token failed", zap.Error(err), zap.String("user_id", req.UserID))
		writeError(w, http.StatusInternalServerError, "failed to store push token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
