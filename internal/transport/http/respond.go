package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorBody struct {
	Error     string               `json:"error"`
	Message   string               `json:"msg"`
	Field     string               `json:"field,omitempty"`
	AttemptID int64                `json:"attempt_id,omitempty"`
	Status    domain.AttemptStatus `json:"status,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError maps a use-case error onto a status code and JSON body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "http: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Message = "internal error"
	}
	respondJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var (
		verr     *domain.ValidationError
		conflict *domain.AttemptConflictError
		expired  *domain.AttemptExpiredError
	)
	switch {
	case errors.As(err, &verr):
		body.Error, body.Field, body.Message = "validation_failed", verr.Field, verr.Error()
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrValidation):
		body.Error = "validation_failed"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrUnauthenticated):
		body.Error = "unauthenticated"
		return http.StatusUnauthorized, body
	case errors.Is(err, domain.ErrForbidden):
		body.Error = "forbidden"
		return http.StatusForbidden, body
	case errors.Is(err, domain.ErrNotFound):
		body.Error = "not_found"
		return http.StatusNotFound, body
	case errors.As(err, &conflict):
		body.Error, body.Message = "conflict", conflict.Reason
		body.AttemptID, body.Status = conflict.AttemptID, conflict.Status
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrConflict):
		body.Error = "conflict"
		return http.StatusConflict, body
	case errors.As(err, &expired):
		body.Error, body.Message = "time_expired", "time limit exceeded"
		body.AttemptID, body.Status = expired.AttemptID, domain.AttemptTimeExpired
		return http.StatusRequestTimeout, body
	case errors.Is(err, domain.ErrTimeout):
		body.Error, body.Status = "time_expired", domain.AttemptTimeExpired
		return http.StatusRequestTimeout, body
	default:
		body.Error = "internal"
		return http.StatusInternalServerError, body
	}
}
