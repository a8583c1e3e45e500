package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/N-O-S-T/FactoryTestApp/internal/audit"
)

// recordAudit writes an audit entry. Failures are logged and never fail
// the request that triggered them.
func (s *Server) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &entry); err != nil {
		s.logger.Warn("failed to record audit entry", "action", entry.Action, "error", err)
	}
}

// handleListAudit returns the operator action trail, newest first.
//
// Query parameters: action, source, limit (1-200), offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Source: q.Get("source"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
