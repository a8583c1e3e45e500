package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
	"github.com/N-O-S-T/FactoryTestApp/internal/sequencer"
)

// handleListOperations returns the operator menu in display order.
func (s *Server) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": s.station.Operations(),
		"active":     s.station.Active(),
	})
}

// handleStartOperation starts an operation in the background.
// The response is 202 once the operation owns the fixture.
func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	done, err := s.station.Start(s.ctx, slug)
	switch {
	case errors.Is(err, sequencer.ErrUnknownOperation):
		writeNotFound(w, "unknown operation: "+slug)
		return
	case errors.Is(err, sequencer.ErrBusy):
		writeConflict(w, "operation in progress: "+s.station.Active())
		return
	case err != nil:
		s.logger.Error("starting operation failed", "operation", slug, "error", err)
		writeInternalError(w, "failed to start operation")
		return
	}

	s.recordAudit(r.Context(), audit.Entry{
		Action:   audit.ActionOperationStart,
		Subject:  slug,
		Operator: s.session.Stats().Session.Operator,
		Source:   audit.SourceAPI,
	})

	// Drain the result so the station goroutine can exit; the outcome is
	// reported through the hub and the logs.
	go func() { <-done }()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"operation": slug,
		"status":    "started",
	})
}

// handleListSlots returns the slot records of the current run.
func (s *Server) handleListSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": s.station.RunID(),
		"slots":  s.station.Slots(),
	})
}
