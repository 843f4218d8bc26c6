package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dcsense-core/internal/audit"
	"github.com/nerrad567/dcsense-core/internal/auth"
)

// handleListUsers returns every username in ascending order.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.auth.ListUsernames(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, names)
}

// handleRemoveUser deletes an account, its ticket and its facility
// ownerships. Removing an unknown user is a conflict.
func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	username, err := url.PathUnescape(chi.URLParam(r, "user"))
	if err != nil {
		writeBadRequest(w, "invalid username")
		return
	}

	if err := s.auth.RemoveUser(r.Context(), username); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeConflict(w, "user does not exist")
			return
		}
		s.writeDomainError(w, r, err)
		return
	}

	pruned, err := s.facilities.PruneOwner(r.Context(), username)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	admin := userFromContext(r.Context())
	s.logger.Info("user removed", "username", username, "removed_by", admin.Username)
	s.audit.Record(r.Context(), audit.ActionRemoveUser, audit.EntityUser, username, admin.Username, map[string]any{
		"facilities_pruned": pruned,
	})
	writeMessage(w, http.StatusOK, "user removed")
}
