package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
)

// ErrUnauthorized is returned when a sweep or usage call lacks the shared
// secret.
var ErrUnauthorized = errors.New("missing or invalid sweep secret")

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	// Possible values: "invalid_request_error", "authentication_error",
	// "not_found", "conflict", "server_error".
	Type string `json:"type"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Fields lists every failed field of a validation error.
	Fields []budget.FieldError `json:"fields,omitempty"`
}

// Error type constants.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeNotFound       = "not_found"
	ErrorTypeConflict       = "conflict"
	ErrorTypeServerError    = "server_error"
)

// Error code constants.
const (
	CodeInvalidJSON    = "invalid_json"
	CodeValidation     = "validation_failed"
	CodeInvalidAmount  = "invalid_amount"
	CodeMissingOwner   = "missing_owner"
	CodeBudgetNotFound = "budget_not_found"
	CodeBudgetExists   = "budget_exists"
	CodeBudgetChanged  = "budget_changed"
	CodeInvalidSecret  = "invalid_secret"
	CodeInternal       = "internal_error"
)

// handleError maps err to a status code and error body.
func handleError(err error) (int, ErrorResponse) {
	var verr *budget.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Message: verr.Error(),
			Type:    ErrorTypeInvalidRequest,
			Code:    CodeValidation,
			Fields:  verr.Errors,
		}}
	case errors.Is(err, budget.ErrInvalidAmount):
		return http.StatusBadRequest, newError(err.Error(), ErrorTypeInvalidRequest, CodeInvalidAmount)
	case errors.Is(err, budget.ErrMissingOwner):
		return http.StatusBadRequest, newError(err.Error(), ErrorTypeInvalidRequest, CodeMissingOwner)
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, newError(err.Error(), ErrorTypeNotFound, CodeBudgetNotFound)
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict, newError(err.Error(), ErrorTypeConflict, CodeBudgetExists)
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, newError(err.Error(), ErrorTypeConflict, CodeBudgetChanged)
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, newError(err.Error(), ErrorTypeAuthentication, CodeInvalidSecret)
	}
	return http.StatusInternalServerError, newError(
		"An internal error occurred. Please try again later.",
		ErrorTypeServerError,
		CodeInternal,
	)
}

func newError(message, errType, code string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message, Type: errType, Code: code}}
}

// writeError writes err as a JSON error response. Internal errors are
// logged with the request context and never exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := handleError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// writeBadRequest reports a body that could not be decoded.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, newError(message, ErrorTypeInvalidRequest, CodeInvalidJSON))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
