package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/livefeed/internal/feed"
	"example.com/livefeed/internal/logger"
)

type errorResponse struct {
	Message string            `json:"message"`
	Data    []feed.FieldError `json:"data,omitempty"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, message string, data []feed.FieldError) {
	writeJSON(w, statusCode, errorResponse{Message: message, Data: data})
}

// handleServiceError maps workflow errors to HTTP responses. Server-side
// failures are logged and reported without detail.
func handleServiceError(w http.ResponseWriter, r *http.Request, module string, err error) {
	kind := feed.KindOf(err)
	status := kind.StatusCode()

	if status >= http.StatusInternalServerError {
		logg.Error(module, "Request failed", err,
			logger.F("kind", kind.String()), logger.F("path", r.URL.Path))
		writeError(w, status, "An internal error occurred", nil)
		return
	}

	var fe *feed.Error
	if errors.As(err, &fe) {
		writeError(w, status, fe.Message, fe.Data)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logg.Error("server", "Failed to encode response", err)
	}
}
