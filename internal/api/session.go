package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
	"github.com/N-O-S-T/FactoryTestApp/internal/session"
)

const (
	defaultResultsLimit = 100
	maxResultsLimit     = 10000
)

// StartSessionRequest is the body of PUT /api/v1/session.
type StartSessionRequest struct {
	Operator  string `json:"operator"`
	Batch     string `json:"batch"`
	BatchInfo string `json:"batch_info"`
}

// handleGetSession returns the current session with its counters.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	stats := s.session.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"session": stats.Session,
		"passed":  stats.Passed,
		"failed":  stats.Failed,
		"pending": stats.Pending,
		"total":   stats.Total(),
	})
}

// handleStartSession starts a new operator session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	info, err := s.session.Start(r.Context(), req.Operator, req.Batch, req.BatchInfo)
	if errors.Is(err, session.ErrInvalidSession) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("starting session failed", "error", err)
		writeInternalError(w, "failed to start session")
		return
	}

	s.recordAudit(r.Context(), audit.Entry{
		Action:   audit.ActionSessionStart,
		Subject:  info.ID,
		Operator: info.Operator,
		Source:   audit.SourceAPI,
		Details:  map[string]any{"batch": info.Batch},
	})

	writeJSON(w, http.StatusOK, info)
}

// handleListResults returns persisted verdicts, newest first.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxResultsLimit {
			writeBadRequest(w, "limit must be between 1 and 10000")
			return
		}
		limit = n
	}

	results, err := s.session.ListResults(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing results failed", "error", err)
		writeInternalError(w, "failed to list results")
		return
	}
	if results == nil {
		results = []session.Result{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}
