package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/gateway"
	"github.com/digitalaxis/axisgate/internal/identity"
	"github.com/digitalaxis/axisgate/internal/rest/ws"
	"github.com/digitalaxis/axisgate/internal/storage/user"
	inmemUser "github.com/digitalaxis/axisgate/internal/storage/user/inmemory"
	pgUser "github.com/digitalaxis/axisgate/internal/storage/user/postgres"
)

const (
	defaultRequestTimeout = 30 * time.Second
	connectTimeout        = 10 * time.Second
	shutdownTimeout       = 10 * time.Second
)

type Rest struct {
	config *Config

	server *http.Server
	pool   *pgxpool.Pool
}

// NewRest opens the users storage and builds the server. Nothing listens
// until Start.
func NewRest(ctx context.Context, config *Config) (*Rest, error) {
	rest := &Rest{
		config: config,
	}

	tokens, err := identity.NewTokenManager(config.JwtSecret, config.JwtTTL)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	usersStorage, err := rest.defineStorage(ctx)
	if err != nil {
		return nil, err
	}

	gatewayConfig := config.Gateway
	gatewayConfig.Logger = config.Logger

	router := rest.newRouter(
		identity.NewService(usersStorage, tokens, config.Logger),
		gateway.New(&gatewayConfig),
	)

	rest.server = &http.Server{
		Addr:              ":" + strconv.Itoa(config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return rest, nil
}

// Start serves until Stop. It returns at once when Stop ran first.
func (rest *Rest) Start() {
	rest.config.Logger.Info("Server listening", zap.Int("port", rest.config.Port))
	if err := rest.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rest.config.Logger.Error("server error", zap.Error(err))
	}
}

func (rest *Rest) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rest.server.Shutdown(ctx); err != nil {
		rest.config.Logger.Error("server error", zap.Error(err))
	}
	if rest.pool != nil {
		rest.pool.Close()
	}
}

func (rest *Rest) newRouter(identitySvc IdentityService, gw ModelGateway) http.Handler {
	h := &handlers{
		identity: identitySvc,
		gateway:  gw,
		metrics:  rest.config.Metrics,
		logger:   rest.config.Logger,
	}
	if rest.config.Hub != nil {
		h.publisher = rest.config.Hub
		h.stats = rest.config.Hub
	}

	timeout := rest.config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		rest.config.Metrics.Middleware,
		requestLogger(rest.config.Logger),
		middleware.Recoverer,
		secureMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   rest.config.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		// Define the /ping endpoint
		r.Get("/ping", ping)
		r.Get("/health", h.health)

		r.Route("/auth", func(r chi.Router) {
			if rest.config.AuthRateLimit > 0 {
				r.Use(httprate.LimitByIP(rest.config.AuthRateLimit, time.Minute))
			}
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.With(optionalAuth(identitySvc)).Get("/me", h.me)
		})

		r.With(optionalAuth(identitySvc)).Post("/predict", h.predict)
	})

	if rest.config.Metrics != nil {
		router.Handle("/metrics", rest.config.Metrics.Handler())
	}

	// Define the /ws endpoint
	if rest.config.Hub != nil {
		wsServer := ws.NewWebSocketHandler(
			rest.config.Hub,
			identitySvc,
			rest.config.AllowedOrigins,
			rest.config.Logger,
		)
		router.HandleFunc("/ws", wsServer.Handle)
	} else {
		rest.config.Logger.Warn("No realtime hub configured, /ws disabled")
	}

	return router
}

func (rest *Rest) defineStorage(ctx context.Context) (user.Storage, error) {
	switch rest.config.UsersStorageType {
	case user.PostgresStorageType:
		rest.config.Logger.Info("Using postgres storage for users")
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		pool, err := pgUser.Connect(ctx, rest.config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("users storage: %w", err)
		}
		rest.pool = pool
		return pgUser.NewStorage(pool, rest.config.Logger), nil
	case user.InMemoryStorageType:
		rest.config.Logger.Info("Using in-memory storage for users")
		return inmemUser.NewStorage(rest.config.Logger), nil
	default:
		rest.config.Logger.Info("Using in-memory storage for users")
		return inmemUser.NewStorage(rest.config.Logger), nil
	}
}
