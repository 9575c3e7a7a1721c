package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/statuscast/internal/engine"
	"github.com/lazypower/statuscast/internal/profile"
	"github.com/lazypower/statuscast/internal/render"
	"github.com/lazypower/statuscast/internal/status"
	"github.com/lazypower/statuscast/internal/store"
)

const maxBodyBytes = 64 << 10

// StatusResponse is the body returned for a processed update.
type StatusResponse struct {
	Entry       status.Entry    `json:"entry"`
	Display     status.Snapshot `json:"display"`
	Previous    *status.Entry   `json:"previous,omitempty"`
	Activity    string          `json:"activity,omitempty"`
	ContextUsed bool            `json:"context_used"`
	Persisted   bool            `json:"persisted"`
	Message     render.Message  `json:"message"`
}

// LatestResponse is the body returned for a user's latest entry.
type LatestResponse struct {
	Entry   status.Entry   `json:"entry"`
	Version int64          `json:"version"`
	Message render.Message `json:"message"`
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	res, err := s.engine.Process(r.Context(), userID, req.Text)
	switch {
	case engine.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("process status", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status processing failed")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Entry:       res.Entry,
		Display:     res.Display,
		Previous:    res.Previous,
		Activity:    res.Activity,
		ContextUsed: res.ContextUsed,
		Persisted:   res.Persisted,
		Message: render.Render(render.Input{
			UserID:      userID,
			Snapshot:    res.Display,
			Previous:    res.Previous,
			Preferences: res.Preferences,
			Now:         s.now(),
		}),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	le, err := s.db.GetLatest(r.Context(), userID)
	if err != nil {
		s.logger.Error("get latest", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read latest status")
		return
	}
	if le == nil {
		writeError(w, http.StatusNotFound, "no status for user")
		return
	}

	prefs, err := s.db.GetPreferences(r.Context(), userID)
	if err != nil {
		s.logger.Warn("get preferences", zap.String("user", userID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, LatestResponse{
		Entry:   le.Entry,
		Version: le.Version,
		Message: render.Render(render.Input{
			UserID:      userID,
			Snapshot:    profile.Apply(le.ProcessedStatus, prefs),
			Preferences: prefs,
			Now:         s.now(),
		}),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := store.DefaultHistoryCap
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.db.GetHistory(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("get history", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	if entries == nil {
		entries = []status.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	n, err := s.db.PurgeAll(r.Context(), userID)
	if err != nil {
		s.logger.Error("purge", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	s.logger.Info("purged user", zap.String("user", userID), zap.Int("removed", n))
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	prefs, err := s.db.GetPreferences(r.Context(), userID)
	if err != nil {
		s.logger.Error("get preferences", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read profile")
		return
	}
	if prefs == nil {
		prefs = &profile.Preferences{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, engine.ErrMissingUser.Error())
		return
	}

	var prefs profile.Preferences
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.db.SavePreferences(r.Context(), userID, prefs); err != nil {
		s.logger.Error("save preferences", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save profile")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
