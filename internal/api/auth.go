package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/dcsense-core/internal/audit"
	"github.com/nerrad567/dcsense-core/internal/auth"
)

type credentials struct {
	Username    string           `json:"username"`
	Password    string           `json:"password"`
	AccessLevel auth.AccessLevel `json:"accessLevel"`
}

// registerRequest is the body of POST /auth/register. Ticket is only
// needed when the requested level exceeds the public registration limit.
type registerRequest struct {
	User   *credentials `json:"user"`
	Ticket *auth.Ticket `json:"ticket"`
}

type loginRequest struct {
	User *credentials `json:"user"`
}

type ticketResponse struct {
	Ticket auth.Ticket `json:"ticket"`
}

type sessionStatusRequest struct {
	Ticket      *auth.Ticket      `json:"ticket"`
	AccessLevel *auth.AccessLevel `json:"accessLevel"`
}

// handleRegister creates an account. Levels above max_public_level require
// an admin ticket in the body.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == nil {
		writeBadRequest(w, "body must contain a user object")
		return
	}

	level := req.User.AccessLevel
	if level == 0 {
		level = auth.LevelPublic
	}
	if !level.Valid() {
		s.writeDomainError(w, r, auth.ErrInvalidAccessLevel)
		return
	}

	registeredBy := ""
	if int(level) > s.secCfg.Registration.MaxPublicLevel {
		if req.Ticket == nil {
			writeUnauthenticated(w, "an admin ticket is required to register this access level")
			return
		}
		admin, err := s.auth.ValidateSession(r.Context(), *req.Ticket, auth.LevelAdmin)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		registeredBy = admin.Username
	}

	user, err := s.auth.Register(r.Context(), req.User.Username, req.User.Password, level)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.ActionRegister, audit.EntityUser, user.Username, registeredBy, map[string]any{
		"access_level": int(user.AccessLevel),
	})

	s.respondJSON(w, r, http.StatusCreated, map[string]any{
		"msg":  "user registered",
		"user": user,
	})
}

// handleLogin exchanges a username and password for a session ticket.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == nil {
		writeBadRequest(w, "body must contain a user object")
		return
	}

	ticket, err := s.auth.Login(r.Context(), req.User.Username, req.User.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.ActionLogin, audit.EntityUser, ticket.Username, ticket.Username, nil)
	s.respondJSON(w, r, http.StatusOK, ticketResponse{Ticket: ticket})
}

// handleLogout deletes the caller's ticket.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ticket, err := decodeTicket(r)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			writeUnauthenticated(w, "session ticket required")
			return
		}
		writeBadRequest(w, "unreadable request body")
		return
	}

	if err := s.auth.Logout(r.Context(), ticket); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.audit.Record(r.Context(), audit.ActionLogout, audit.EntityUser, ticket.Username, ticket.Username, nil)
	writeMessage(w, http.StatusOK, "logged out")
}

// handleSessionStatus validates a ticket at the level named in the body.
// An omitted level means public.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	var req sessionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.Ticket == nil {
		writeUnauthenticated(w, "session ticket required")
		return
	}

	level := auth.LevelPublic
	if req.AccessLevel != nil {
		level = *req.AccessLevel
	}
	if !level.Valid() {
		s.writeDomainError(w, r, auth.ErrInvalidAccessLevel)
		return
	}

	user, err := s.auth.ValidateSession(r.Context(), *req.Ticket, level)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.respondJSON(w, r, http.StatusOK, map[string]any{
		"msg":         "logged in",
		"username":    user.Username,
		"accessLevel": int(user.AccessLevel),
	})
}
