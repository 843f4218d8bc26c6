package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dcsense-core/internal/auth"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
)

// ticketBody is the part of every guarded request body the guards read.
type ticketBody struct {
	Ticket *auth.Ticket `json:"ticket"`
}

// readBody reads the request body and puts an unread copy back so the
// handler can decode it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// decodeTicket extracts the session ticket from a request body. A missing
// or unparsable ticket is reported as auth.ErrNotLoggedIn.
func decodeTicket(r *http.Request) (auth.Ticket, error) {
	body, err := readBody(r)
	if err != nil {
		return auth.Ticket{}, err
	}
	var tb ticketBody
	if len(body) == 0 || json.Unmarshal(body, &tb) != nil || tb.Ticket == nil {
		metrics.SessionRejectionsTotal.WithLabelValues("missing").Inc()
		return auth.Ticket{}, auth.ErrNotLoggedIn
	}
	return *tb.Ticket, nil
}

// requireSession validates the body's ticket at level and stores the
// authenticated user in the request context.
func (s *Server) requireSession(level auth.AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ticket, err := decodeTicket(r)
			if err != nil {
				if errors.Is(err, auth.ErrNotLoggedIn) {
					writeUnauthenticated(w, "session ticket required")
					return
				}
				writeBadRequest(w, "unreadable request body")
				return
			}

			user, err := s.auth.ValidateSession(r.Context(), ticket, level)
			if err != nil {
				s.writeDomainError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireControllerAccess admits owners of a facility listing {controller}.
// It must run after requireSession.
func (s *Server) requireControllerAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := controllerParam(r)
		if err != nil {
			writeBadRequest(w, "invalid controller id")
			return
		}
		if err := s.authz.CheckControllerAccess(r.Context(), userFromContext(r.Context()), id); err != nil {
			if errors.Is(err, auth.ErrNotOwner) {
				metrics.SessionRejectionsTotal.WithLabelValues("not_owner").Inc()
			}
			s.writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireFacilityAccess admits owners of {facility}. It must run after
// requireSession.
func (s *Server) requireFacilityAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := facilityParam(r)
		if err != nil {
			writeBadRequest(w, "invalid facility name")
			return
		}
		if err := s.authz.CheckFacilityAccess(r.Context(), userFromContext(r.Context()), name); err != nil {
			if errors.Is(err, auth.ErrNotOwner) {
				metrics.SessionRejectionsTotal.WithLabelValues("not_owner").Inc()
			}
			s.writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userFromContext returns the user stored by requireSession.
func userFromContext(ctx context.Context) *auth.User {
	u, _ := ctx.Value(ctxKeyUser).(*auth.User)
	return u
}

func controllerParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "controller"), 10, 64)
}

func facilityParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "facility"))
}
