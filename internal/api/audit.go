package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/dcsense-core/internal/audit"
)

type auditListRequest struct {
	Filter audit.Filter `json:"filter"`
}

// handleListAuditLogs returns one page of audit entries, newest first.
// The body's filter object may narrow by action, entity_type, entity_id
// and username, and paginate with limit (default 50, max 200) and offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	var req auditListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "malformed request body")
		return
	}

	result, err := s.auditRepo.List(r.Context(), req.Filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, result)
}
