package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/dcsense-core/internal/auth"
	"github.com/nerrad567/dcsense-core/internal/facility"
	"github.com/nerrad567/dcsense-core/internal/ingest"
)

// Error is the body of every error response.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	LoggedIn *bool  `json:"logged_in,omitempty"`
}

type errorResponse struct {
	Error Error `json:"error"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeConflict        = "conflict"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
// The payload is encoded before the header goes out, so a value that cannot
// be encoded turns into a 500 envelope rather than an empty success. The
// encoding error is returned for the caller to log.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		writeInternalError(w, "internal server error")
		return fmt.Errorf("encoding response: %w", err)
	}

	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(append(body, '\n'))
	return nil
}

// respondJSON is writeJSON for handlers: encoding failures are logged with
// the request ID.
func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.logger.Error("response encoding failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
}

// writeMessage writes {"msg": msg}.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg}) //nolint:errcheck // Fixed shape always encodes
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: Error{Code: code, Message: message}}) //nolint:errcheck // Fixed shape always encodes
}

func writeAuthError(w http.ResponseWriter, code, message string, loggedIn *bool) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: Error{Code: code, Message: message, LoggedIn: loggedIn}}) //nolint:errcheck // Fixed shape always encodes
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	loggedIn := false
	writeAuthError(w, ErrCodeUnauthenticated, message, &loggedIn)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error to its HTTP response. Anything it
// does not recognise is a storage failure: it is logged and reported as 500
// without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	loggedIn := true

	switch {
	case errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, facility.ErrFacilityExists):
		writeConflict(w, err.Error())

	case errors.Is(err, auth.ErrNotLoggedIn):
		writeUnauthenticated(w, err.Error())
	case errors.Is(err, auth.ErrInsufficientAccess),
		errors.Is(err, auth.ErrNotOwner):
		writeAuthError(w, ErrCodeUnauthorized, err.Error(), &loggedIn)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeAuthError(w, ErrCodeUnauthorized, err.Error(), nil)

	case errors.Is(err, facility.ErrFacilityNotFound),
		errors.Is(err, facility.ErrOwnerNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, err.Error())

	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidAccessLevel),
		errors.Is(err, auth.ErrEmptySecret),
		errors.Is(err, facility.ErrInvalidName),
		errors.Is(err, facility.ErrUnknownOp),
		errors.Is(err, ingest.ErrEmptyBatch),
		errors.Is(err, ingest.ErrMixedControllers),
		errors.Is(err, ingest.ErrInvalidTime):
		writeBadRequest(w, err.Error())

	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
