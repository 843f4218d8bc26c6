package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dcsense-core/internal/ingest"
)

// handleSubmitReadings ingests one batch from a controller. It is
// unauthenticated; controllers do not hold sessions.
func (s *Server) handleSubmitReadings(w http.ResponseWriter, r *http.Request) {
	var batch []ingest.RawReading
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeBadRequest(w, "body must be a JSON array of readings")
		return
	}

	result, err := s.ingest.Submit(r.Context(), batch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, result)
}

// handleListControllers returns every controller with production readings.
func (s *Server) handleListControllers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.readings.ListControllers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, ids)
}

// handleListDates serves both the /limit/{limit} and /all forms.
func (s *Server) handleListDates(w http.ResponseWriter, r *http.Request) {
	id, err := controllerParam(r)
	if err != nil {
		writeBadRequest(w, "invalid controller id")
		return
	}

	limit := 0
	if raw := chi.URLParam(r, "limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
	}

	dates, err := s.readings.ListDates(r.Context(), id, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, dates)
}

// handleReadingsAt returns the production readings of one batch.
func (s *Server) handleReadingsAt(w http.ResponseWriter, r *http.Request) {
	id, err := controllerParam(r)
	if err != nil {
		writeBadRequest(w, "invalid controller id")
		return
	}
	at, err := parseReadingTime(chi.URLParam(r, "time"))
	if err != nil {
		writeBadRequest(w, "time must be RFC 3339 or unix milliseconds")
		return
	}

	readings, err := s.readings.ReadingsAt(r.Context(), id, at)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, readings)
}

// parseReadingTime accepts an RFC 3339 timestamp or integer unix milliseconds.
func parseReadingTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
