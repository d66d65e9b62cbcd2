package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/gateway"
)

const (
	msgInternalError      = "internal server error"
	msgModelUnavailable   = "Model service unavailable"
	msgInvalidRequestBody = "Invalid request body"
	msgBodyTooLarge       = "Request body too large"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps err to its status code and a client-safe message.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	writeJSON(w, status, errorResponse{Error: msg})
}

func classify(err error) (int, string) {
	var upstream *gateway.UpstreamError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, apperrors.Message(err, msgInvalidRequestBody)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusBadRequest, apperrors.Message(err, "Incorrect password")
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, apperrors.Message(err, "Not found")
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusBadRequest, apperrors.Message(err, "Already exists")
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, apperrors.Message(err, "Unauthorized")
	case errors.As(err, &upstream):
		return http.StatusBadGateway, upstream.Error()
	case errors.Is(err, apperrors.ErrUpstream), errors.Is(err, apperrors.ErrTransport):
		return http.StatusBadGateway, msgModelUnavailable
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}
