// Package httpx provides HTTP response helpers shared by the API handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/series"
	"github.com/nicktill/clusterwatch/pkg/windowstore"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON response", zap.Error(err))
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes an error response with the given status code and error message.
func RespondError(w http.ResponseWriter, status int, err error) {
	RespondErrorString(w, status, err.Error())
}

// RespondErrorString writes an error response with the given status code and message.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case series.IsValidation(err):
		return http.StatusBadRequest
	case series.IsDataUnavailable(err):
		return http.StatusNotFound
	case errors.Is(err, windowstore.ErrRegenerationInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError writes err with the status from StatusFor and returns
// that status.
func RespondServiceError(w http.ResponseWriter, err error) int {
	status := StatusFor(err)
	RespondError(w, status, err)
	return status
}
