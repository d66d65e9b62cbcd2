package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/gateway"
	"github.com/digitalaxis/axisgate/internal/metrics"
	"github.com/digitalaxis/axisgate/internal/models"
)

const (
	EventPredictionResult = "prediction_result"

	maxRequestBody = 1 << 20
)

// IdentityService is what the auth routes need from identity.Service.
type IdentityService interface {
	Register(ctx context.Context, name, email, rawPassword string) (*models.User, error)
	Login(ctx context.Context, email, rawPassword string) (string, error)
	Authenticate(token string) (string, error)
	Profile(ctx context.Context, userID string) (*models.User, error)
}

// ModelGateway is what the predict and health routes need from gateway.Gateway.
type ModelGateway interface {
	Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	Health(ctx context.Context) (*gateway.ModelHealth, error)
}

// Publisher pushes a message to a user's realtime room.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, data any) error
}

// HubStats reports realtime hub occupancy.
type HubStats interface {
	Stats() (clients, rooms int)
	Members(userID string) int
}

type handlers struct {
	identity  IdentityService
	gateway   ModelGateway
	publisher Publisher
	stats     HubStats
	metrics   *metrics.Metrics

	logger *zap.Logger
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string            `json:"message"`
	User    models.PublicUser `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type meResponse struct {
	User        models.PublicUser `json:"user"`
	Connections int               `json:"connections"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelService string `json:"model_service"`
	ModelLoaded  bool   `json:"model_loaded"`
	Connections  int    `json:"connections"`
	Rooms        int    `json:"rooms"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.identity.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.logFailure("register", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Message: "User registered successfully",
		User:    u.Public(),
	})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure("login", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login success",
		Token:   token,
	})
}

// me returns the caller's profile and how many realtime connections sit in
// the caller's room.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.New(apperrors.ErrUnauthorized, "Missing token"))
		return
	}

	u, err := h.identity.Profile(r.Context(), userID)
	if err != nil {
		h.logFailure("me", err)
		writeError(w, err)
		return
	}

	resp := meResponse{User: u.Public()}
	if h.stats != nil {
		resp.Connections = h.stats.Members(userID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// predict forwards the body to the model service. When the caller is
// authenticated the result is also pushed to the caller's room.
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		h.metrics.ObservePrediction(metrics.OutcomeInvalid)
		writeError(w, bodyError(err))
		return
	}

	result, err := h.gateway.Predict(r.Context(), payload)
	h.metrics.ObservePrediction(predictionOutcome(err))
	if err != nil {
		h.logFailure("predict", err)
		writeError(w, err)
		return
	}

	if userID, ok := UserIDFromContext(r.Context()); ok && h.publisher != nil {
		// The push outlives a client that hangs up after the answer.
		ctx := context.WithoutCancel(r.Context())
		err := h.publisher.Publish(ctx, userID, EventPredictionResult, result)
		h.metrics.ObservePush(err)
		if err != nil {
			h.logger.Warn("Failed to push prediction result", zap.String("userID", userID), zap.Error(err))
		}
	}

	writeRawJSON(w, http.StatusOK, result)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", ModelService: "healthy"}

	model, err := h.gateway.Health(r.Context())
	switch {
	case err != nil:
		h.logger.Warn("Model service health check failed", zap.Error(err))
		resp.Status = "degraded"
		resp.ModelService = "unavailable"
	default:
		resp.ModelService = model.Status
		resp.ModelLoaded = model.ModelLoaded
		if !model.ModelLoaded {
			resp.Status = "degraded"
		}
	}
	if h.stats != nil {
		resp.Connections, resp.Rooms = h.stats.Stats()
	}

	writeJSON(w, http.StatusOK, resp)
}

func predictionOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperrors.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperrors.ErrUpstream):
		return metrics.OutcomeUpstream
	case errors.Is(err, apperrors.ErrTransport):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}

func ping(w http.ResponseWriter, _ *http.Request) {
	_, err := w.Write([]byte("pong"))
	if err != nil {
		return
	}
}

func (h *handlers) logFailure(op string, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		return
	}
	h.logger.Debug("Request rejected", zap.String("op", op), zap.Error(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(target); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.New(apperrors.ErrValidation, msgBodyTooLarge)
	}
	return apperrors.New(apperrors.ErrValidation, msgInvalidRequestBody)
}
