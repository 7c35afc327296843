package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/store"
)

// maxDeliveriesLimit caps the limit query parameter.
const maxDeliveriesLimit = 500

// SessionSummary is the admin view of an open scheduling session.
type SessionSummary struct {
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Step      string    `json:"step"`
	UpdatedAt time.Time `json:"updated_at"`
}

// allowGet rejects anything but GET with 405.
func allowGet(w http.ResponseWriter, r *http.Request, handler string) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	slog.Warn("Server."+handler+": method not allowed", "method", r.Method)
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r, "healthHandler") {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":   string(models.APIStatusOK),
		"platform": s.platform,
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r, "sessionsHandler") {
		return
	}
	sessions := s.sessions.List()
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, SessionSummary{
			UserID:    sess.UserID,
			ChannelID: sess.ChannelID,
			Step:      sess.Step.String(),
			UpdatedAt: sess.UpdatedAt,
		})
	}
	slog.Debug("Server.sessionsHandler: listing sessions", "count", len(summaries))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{
		"count":    len(summaries),
		"sessions": summaries,
	}))
}

func (s *Server) deliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r, "deliveriesHandler") {
		return
	}

	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			slog.Warn("Server.deliveriesHandler: invalid limit", "limit", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = min(n, maxDeliveriesLimit)
	}

	deliveries, err := s.store.ListDeliveries(limit)
	if err != nil {
		slog.Error("Server.deliveriesHandler: failed to list deliveries", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list deliveries"))
		return
	}
	if deliveries == nil {
		deliveries = []store.Delivery{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(deliveries))
}
