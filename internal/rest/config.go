package rest

import (
	"time"

	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/gateway"
	"github.com/digitalaxis/axisgate/internal/hub"
	"github.com/digitalaxis/axisgate/internal/metrics"
)

type Config struct {
	// Port is the port where the server will listen
	Port int

	// AllowedOrigins are the browser origins accepted by CORS and /ws
	AllowedOrigins []string

	// AuthRateLimit is the number of /auth requests per minute per IP, 0 disables it
	AuthRateLimit int

	// RequestTimeout bounds every non-websocket request
	RequestTimeout time.Duration

	// JwtSecret signs the session tokens
	JwtSecret string

	// JwtTTL is the lifetime of a session token, 0 means no expiry
	JwtTTL time.Duration

	// UsersStorageType selects the credential store, see storage/user
	UsersStorageType string

	// PostgresDSN is used when UsersStorageType is postgres
	PostgresDSN string

	// Gateway configures the model service client
	Gateway gateway.Config

	// Hub is the process realtime hub; nil disables result pushes
	Hub *hub.Hub

	// Metrics enables /metrics when set
	Metrics *metrics.Metrics

	Logger *zap.Logger
}
