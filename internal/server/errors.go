package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aquintel/spillwatch/internal/access"
	"github.com/aquintel/spillwatch/internal/commands"
	"github.com/aquintel/spillwatch/internal/detect"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/internal/docstore"
	"github.com/aquintel/spillwatch/internal/geo"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusFor maps an error to an HTTP status, using fallback when the error
// carries no known sentinel.
func StatusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, commands.ErrBadArgument),
		errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, geo.ErrUnsupportedCRS):
		return http.StatusBadRequest
	case errors.Is(err, commands.ErrVesselNotFound):
		return http.StatusNotFound
	case errors.Is(err, commands.ErrNoPosition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, commands.ErrUnavailable),
		errors.Is(err, detect.ErrNotConfigured),
		errors.Is(err, docstore.ErrNotConfigured),
		errors.Is(err, dispatcher.ErrQueueFull),
		errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, detect.ErrUnknownClassification):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return fallback
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := StatusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		s.deps.Logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.deps.Logger.DebugContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error(), nil)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
