// Package api serves the assistant over HTTP: health, gate control, text chat
// sessions, memories and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethanbaker/api/pkg/api_key"
	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/ethanbaker/melissa/internal/metrics"
	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/stores/session"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	agent_module "github.com/ethanbaker/melissa/internal/api/modules/agent"
	gate_module "github.com/ethanbaker/melissa/internal/api/modules/gate"
	health_module "github.com/ethanbaker/melissa/internal/api/modules/health"
	memories_module "github.com/ethanbaker/melissa/internal/api/modules/memories"
)

// ErrMissingAPIKey is returned when API_KEY is not configured
var ErrMissingAPIKey = errors.New("API_KEY not set in environment")

const shutdownTimeout = 10 * time.Second

// Options are the collaborators the routes are built on. Gate, Sessions and Responder
// are required; Memory and Metrics are optional.
type Options struct {
	Config    *utils.Config
	Logger    *zap.Logger
	Gate      *wakeword.Gate
	Sessions  *session.Store
	Responder agent.Responder
	Memory    *recall.Service
	Metrics   *metrics.Collector
}

// New builds the gin engine with every module registered
func New(opts Options) (*gin.Engine, error) {
	if opts.Config == nil {
		opts.Config = utils.NewConfig(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gate == nil || opts.Sessions == nil || opts.Responder == nil {
		return nil, errors.New("api requires a gate, a session store and a responder")
	}

	// Make api key validator
	validator, err := makeApiKeyValidator(opts.Config)
	if err != nil {
		return nil, err
	}
	auth := api_key.APIKeyHeaderHandler(validator)

	// Add app level settings/routes
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))
	engine.NoRoute(api_utils.NoRouteHandler)

	// Add trusted proxies
	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(opts.Config.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if opts.Metrics != nil {
		engine.Use(opts.Metrics.GinMiddleware())
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	health_module.RegisterRoutes(baseGroup)
	gate_module.RegisterRoutes(baseGroup, opts.Gate, auth)
	memories_module.RegisterRoutes(baseGroup, opts.Memory, auth)

	deps := agent_module.Deps{
		Sessions:  opts.Sessions,
		Responder: opts.Responder,
		Logger:    opts.Logger,
	}
	if opts.Memory.Available() {
		deps.Learner = opts.Memory
	}
	agent_module.RegisterRoutes(baseGroup, deps, auth)

	return engine, nil
}

// Start serves the API on API_PORT until ctx is cancelled, then shuts down gracefully
func Start(ctx context.Context, opts Options) error {
	engine, err := New(opts)
	if err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	port := opts.Config.GetWithDefault("API_PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// makeApiKeyValidator checks if the provided API key is valid
func makeApiKeyValidator(cfg *utils.Config) (func(key string) bool, error) {
	// Get api key from config
	apiKey := cfg.Get("API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return func(key string) bool {
		return apiKey == key
	}, nil
}

// requestLogger logs one line per request through zap
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "api"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
