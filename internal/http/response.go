package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"speza/internal/core"
	"speza/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapError picks the status code for an error coming out of the service.
func mapError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInvalidIndex), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrIDsUnsupported):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their detail from the
// client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
