// Package httpjson writes JSON bodies for the /api handlers.
package httpjson

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/gather/internal/app/system/apperr"
	"go.uber.org/zap"
)

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// Write encodes v as the response body with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": msg} with the given status.
func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, errorBody{Error: msg})
}

// FromError writes err using the apperr taxonomy. Internal errors are logged
// with the operation name and answered with fallback so driver details never
// reach the client.
func FromError(w http.ResponseWriter, log *zap.Logger, op string, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError && log != nil {
		log.Error(op+" failed", zap.Error(err))
	}
	Error(w, status, apperr.Message(err, fallback))
}

// Decode reads a JSON request body into dst. A malformed body is a
// validation error.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}
