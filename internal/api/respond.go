package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Busy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to its HTTP status and error body.
// Internal errors are logged and never leak their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	resp := ErrorResponse{Error: apperr.CodeOf(err), Details: err.Error()}
	var short *pharmacy.InsufficientStockError
	if errors.As(err, &short) {
		resp.Lines = short.Lines
	}
	if kind == apperr.Busy {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, statusFor(kind), resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, raw, field string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, ok := parseUUID(w, raw, field)
	if !ok {
		return nil, false
	}
	return &id, true
}

func parseDate(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return d, true
}
