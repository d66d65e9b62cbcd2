package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
)

func TestPredictForwardsExactPayload(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotMethod string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"y": 2}`))
	}))
	defer upstream.Close()

	g := New(&Config{PredictURL: upstream.URL, Logger: zap.NewNop()})

	res, err := g.Predict(context.Background(), json.RawMessage(`{"x": 1}`))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"x": 1}`, string(gotBody))
	assert.Equal(t, `{"y": 2}`, string(res))
}

func TestPredictUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Model not loaded"}`, http.StatusInternalServerError)
	}))
	defer upstream.Close()

	g := New(&Config{PredictURL: upstream.URL})

	_, err := g.Predict(context.Background(), json.RawMessage(`{"x": 1}`))
	require.ErrorIs(t, err, apperrors.ErrUpstream)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.Equal(t, "Model service error: Internal Server Error", err.Error())
}

func TestPredictInvalidUpstreamJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer upstream.Close()

	_, err := New(&Config{PredictURL: upstream.URL}).Predict(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestPredictTransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	_, err := New(&Config{PredictURL: url}).Predict(context.Background(), json.RawMessage(`{"x": 1}`))
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.NotErrorIs(t, err, apperrors.ErrUpstream)
}

func TestPredictRejectsInvalidPayload(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	g := New(&Config{PredictURL: upstream.URL})
	for _, p := range []string{"", "{", "x=1"} {
		_, err := g.Predict(context.Background(), json.RawMessage(p))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Zero(t, calls.Load())
}

func TestPredictNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	_, err := New(&Config{PredictURL: upstream.URL}).Predict(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	g := New(&Config{PredictURL: upstream.URL, MaxRetries: 3})
	res, err := g.Predict(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(res))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPredictDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer upstream.Close()

	g := New(&Config{PredictURL: upstream.URL, MaxRetries: 3})
	_, err := g.Predict(context.Background(), json.RawMessage(`{}`))
	require.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	g := New(&Config{PredictURL: upstream.URL, Timeout: 50 * time.Millisecond})
	_, err := g.Predict(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestHealth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"status":"healthy","model_loaded":true}`))
	}))
	defer upstream.Close()

	h, err := New(&Config{HealthURL: upstream.URL}).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ModelHealth{Status: "healthy", ModelLoaded: true}, h)
}
