package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
	"github.com/redmonkez12/payflow-auth/internal/logging"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// MessageResponse carries a human-readable outcome
type MessageResponse struct {
	Message string `json:"message"`
}

// RespondJSON sends a JSON response with the given status code.
// Encoding errors are logged with the request logger.
func RespondJSON(w http.ResponseWriter, r *http.Request, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to encode JSON response", "error", err.Error())
	}
}

// RespondError sends a JSON error response with the given message and status code.
func RespondError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	RespondJSON(w, r, ErrorResponse{Error: message}, statusCode)
}

// RespondErrorWithCode sends a JSON error response with a machine-readable error code.
func RespondErrorWithCode(w http.ResponseWriter, r *http.Request, message string, code string, statusCode int) {
	RespondJSON(w, r, ErrorResponse{Error: message, Code: code}, statusCode)
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindAuthentication, apperror.KindAuthorization:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondAppError writes err using the taxonomy in package apperror.
// Unclassified and infrastructure errors are logged in full and reach the
// client only as a generic message.
func RespondAppError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	appErr, ok := apperror.As(err)
	if !ok || appErr.Kind == apperror.KindInfrastructure || appErr.Kind == apperror.KindUnknown {
		logger.Error("request failed: internal error", "error", err.Error())
		RespondErrorWithCode(w, r, "An unexpected error occurred", apperror.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Warn("request rejected", "kind", appErr.Kind.String(), "code", appErr.Code)
	RespondJSON(w, r, ErrorResponse{
		Error:  appErr.Message,
		Code:   appErr.Code,
		Fields: appErr.Fields,
	}, StatusFor(appErr.Kind))
}

// DecodeJSON reads a JSON request body into dst. A malformed body yields a
// validation error.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation(apperror.CodeInvalidRequestBody, "invalid request body", nil)
	}
	return nil
}
