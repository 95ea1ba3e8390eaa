package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/notify"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// serviceError maps roster and storage errors onto the error envelope.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, roster.ErrUnknownPhase):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, roster.ErrForbidden):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, roster.ErrValidation),
		errors.Is(err, roster.ErrUnknownItem),
		errors.Is(err, roster.ErrInviteNotPending):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, roster.ErrPhaseLocked),
		errors.Is(err, roster.ErrInvalidTransition),
		errors.Is(err, roster.ErrConflict):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, notify.ErrNotConfigured):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// parseDate accepts YYYY-MM-DD. An empty value is the zero time.
func parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t := compliance.ParseDate(v)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("%s must be a YYYY-MM-DD date, got %q", field, v)
	}
	return t, nil
}
