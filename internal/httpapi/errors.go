package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/finworks/refflow/internal/domain"
)

// errorResponse is the wire shape of every API failure: a stable code plus a
// human-readable message.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the workflow error taxonomy onto HTTP statuses. Validation
// and policy errors surface their message; persistence failures surface a
// generic message and log the detail server-side.
func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPolicyViolation):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConcurrencyConflict):
		status = http.StatusConflict
		message = "the entity changed while processing the request, please retry"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	default:
		log.Printf("[HTTP] internal error: %v", err)
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}
