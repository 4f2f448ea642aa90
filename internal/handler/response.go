package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/middleware"
	"github.com/notarydesk/authcore/internal/service"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeServiceError maps a service or storage error to its HTTP status.
// Anything unrecognised is logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrValidation), errors.Is(err, domain.ErrInvalidRole):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWrongPassword):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRegistrationDisabled):
		middleware.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, security.ErrAccessDenied):
		middleware.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrDuplicateUsername):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn("request abandoned",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, http.StatusServiceUnavailable, "service busy")
	default:
		log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
