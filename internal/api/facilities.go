package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dcsense-core/internal/audit"
	"github.com/nerrad567/dcsense-core/internal/facility"
)

type addFacilityRequest struct {
	Facility *struct {
		Name string `json:"name"`
	} `json:"facility"`
}

// handleAddFacility creates an empty facility.
func (s *Server) handleAddFacility(w http.ResponseWriter, r *http.Request) {
	var req addFacilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Facility == nil {
		writeBadRequest(w, "body must contain a facility object")
		return
	}

	if err := s.facilities.Create(r.Context(), req.Facility.Name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	admin := userFromContext(r.Context())
	s.audit.Record(r.Context(), audit.ActionAddFacility, audit.EntityFacility, req.Facility.Name, admin.Username, nil)
	s.respondJSON(w, r, http.StatusCreated, map[string]string{
		"msg":  "facility created",
		"name": req.Facility.Name,
	})
}

// handleRemoveFacility deletes a facility. Removing an unknown facility is
// a conflict.
func (s *Server) handleRemoveFacility(w http.ResponseWriter, r *http.Request) {
	name, err := facilityParam(r)
	if err != nil {
		writeBadRequest(w, "invalid facility name")
		return
	}

	if err := s.facilities.Delete(r.Context(), name); err != nil {
		if errors.Is(err, facility.ErrFacilityNotFound) {
			writeConflict(w, "facility does not exist")
			return
		}
		s.writeDomainError(w, r, err)
		return
	}

	admin := userFromContext(r.Context())
	s.audit.Record(r.Context(), audit.ActionRemoveFacility, audit.EntityFacility, name, admin.Username, nil)
	writeMessage(w, http.StatusOK, "facility removed")
}

// handleListFacilities returns the caller's facilities, or all of them for
// an admin.
func (s *Server) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var (
		names []string
		err   error
	)
	if user.IsAdmin() {
		names, err = s.facilities.List(r.Context())
	} else {
		names, err = s.facilities.ListOwned(r.Context(), user.Username)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, names)
}

func (s *Server) handleListOwners(w http.ResponseWriter, r *http.Request) {
	name, err := facilityParam(r)
	if err != nil {
		writeBadRequest(w, "invalid facility name")
		return
	}

	owners, err := s.facilities.Owners(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, owners)
}

func (s *Server) handleListFacilityControllers(w http.ResponseWriter, r *http.Request) {
	name, err := facilityParam(r)
	if err != nil {
		writeBadRequest(w, "invalid facility name")
		return
	}

	ids, err := s.facilities.Controllers(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, ids)
}

// handleUpdateOwners adds or removes one owner. Both verbs are idempotent.
func (s *Server) handleUpdateOwners(w http.ResponseWriter, r *http.Request) {
	name, err := facilityParam(r)
	if err != nil {
		writeBadRequest(w, "invalid facility name")
		return
	}
	op, err := facility.ParseOp(chi.URLParam(r, "verb"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	username, err := url.PathUnescape(chi.URLParam(r, "user"))
	if err != nil {
		writeBadRequest(w, "invalid username")
		return
	}

	if err := s.facilities.UpdateOwners(r.Context(), name, op, username); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	action := audit.ActionAddOwner
	if op == facility.OpRemove {
		action = audit.ActionRemoveOwner
	}
	s.audit.Record(r.Context(), action, audit.EntityFacility, name, userFromContext(r.Context()).Username,
		map[string]any{"owner": username})
	writeMessage(w, http.StatusOK, "owners updated")
}

// handleUpdateControllers adds or removes one controller. Both verbs are
// idempotent.
func (s *Server) handleUpdateControllers(w http.ResponseWriter, r *http.Request) {
	name, err := facilityParam(r)
	if err != nil {
		writeBadRequest(w, "invalid facility name")
		return
	}
	op, err := facility.ParseOp(chi.URLParam(r, "verb"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "controller"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid controller id")
		return
	}

	if err := s.facilities.UpdateControllers(r.Context(), name, op, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	action := audit.ActionAddController
	if op == facility.OpRemove {
		action = audit.ActionRemoveController
	}
	s.audit.Record(r.Context(), action, audit.EntityFacility, name, userFromContext(r.Context()).Username,
		map[string]any{"controller": id})
	writeMessage(w, http.StatusOK, "controllers updated")
}
