// Package gateway forwards prediction payloads to the external model service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
)

const (
	DefaultPredictURL = "http://localhost:8000/predict"
	DefaultHealthURL  = "http://localhost:8000/health"
	DefaultTimeout    = 30 * time.Second

	retryBaseDelay = 100 * time.Millisecond
	maxBodySize    = 8 << 20
)

type Config struct {
	// PredictURL receives POST requests with the raw payload.
	PredictURL string

	// HealthURL is polled by Health.
	HealthURL string

	// Timeout bounds a single attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a transport failure
	// or a 5xx answer. Zero disables retrying.
	MaxRetries uint64

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// UpstreamError is returned when the model service answers with a non-2xx
// status or with a body that is not JSON.
type UpstreamError struct {
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return "Model service error: " + e.Status
}

func (e *UpstreamError) Unwrap() error {
	return apperrors.ErrUpstream
}

// TransportError is returned when the model service cannot be reached.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "Model service unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{apperrors.ErrTransport, e.Err}
}

// ModelHealth is the answer of the model service health endpoint.
type ModelHealth struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type Gateway struct {
	predictURL string
	healthURL  string
	maxRetries uint64

	client *http.Client
	logger *zap.Logger
}

func New(config *Config) *Gateway {
	g := &Gateway{
		predictURL: config.PredictURL,
		healthURL:  config.HealthURL,
		maxRetries: config.MaxRetries,
		client:     config.HTTPClient,
		logger:     config.Logger,
	}
	if g.predictURL == "" {
		g.predictURL = DefaultPredictURL
	}
	if g.healthURL == "" {
		g.healthURL = DefaultHealthURL
	}
	if g.client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		g.client = &http.Client{Timeout: timeout}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Predict sends payload to the model service unchanged and returns the
// service's JSON answer unchanged. Every call reaches the upstream.
func (g *Gateway) Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, apperrors.New(apperrors.ErrValidation, "Payload must be valid JSON")
	}

	var result json.RawMessage
	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewExponential(retryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := g.predictOnce(ctx, payload)
		if err != nil {
			if retryable(err) {
				g.logger.Warn("Model service call failed", zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		g.logger.Error("Error calling model service", zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (g *Gateway) predictOnce(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.predictURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if !json.Valid(body) {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: "invalid JSON response"}
	}
	return json.RawMessage(body), nil
}

// Health asks the model service whether it is up and has a model loaded.
func (g *Gateway) Health(ctx context.Context) (*ModelHealth, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	var health ModelHealth
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&health); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: "invalid JSON response"}
	}
	return &health, nil
}

func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return !errors.Is(te.Err, context.Canceled)
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// statusText returns the reason phrase without the numeric code.
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
