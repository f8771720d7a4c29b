// Package api provides the HTTP control surface of the voice changer.
// It exposes the session controller as a small JSON API and, when
// metrics are enabled, the Prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/voicechanger/internal/api/auth"
	mw "github.com/tphakala/voicechanger/internal/api/middleware"
	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

const componentAPI = "api"

// SessionController is the controller surface used by the API.
type SessionController interface {
	State() controller.State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPitch(ctx context.Context, v float32) (float32, error)
	PitchRange() (minPitch, maxPitch float32)
}

// Server is the HTTP server for the control API.
type Server struct {
	echo   *echo.Echo
	config Config
	ctrl   SessionController
	log    logger.Logger

	recorder       mw.RequestRecorder
	metricsHandler http.Handler
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records request metrics through rec and serves handler on /metrics.
func WithMetrics(rec mw.RequestRecorder, handler http.Handler) ServerOption {
	return func(s *Server) {
		s.recorder = rec
		s.metricsHandler = handler
	}
}

// New creates a new HTTP server with the given configuration and options.
func New(config Config, ctrl SessionController, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, errors.Newf("session controller is required").
			Component(componentAPI).
			Category(errors.CategoryValidation).
			Build()
	}

	s := &Server{
		config: config,
		ctrl:   ctrl,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.IPExtractor = echo.ExtractIPDirect()
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("metrics", s.metricsHandler != nil),
		logger.Bool("auth", config.Token != ""))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(mw.NewTraceContext())
	s.echo.Use(mw.NewRequestLogger(s.log, s.recorder))

	securityConfig := mw.DefaultSecurityConfig()
	if len(s.config.AllowedOrigins) > 0 {
		securityConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	authMiddleware := auth.NewMiddleware(auth.NewTokenService(s.config.Token, s.config.LoopbackBypass))
	group := s.echo.Group("/api/v1/session", authMiddleware.Authenticate)
	group.GET("", s.GetSession)
	group.POST("/start", s.StartSession)
	group.POST("/stop", s.StopSession)
	group.PUT("/pitch", s.SetPitch)

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

// healthCheck reports liveness of the HTTP server.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", logger.String("address", s.config.Listen))
		errc <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(componentAPI).
			Category(errors.CategoryNetwork).
			Context("operation", "listen").
			Context("address", s.config.Listen).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown failed", logger.Error(err))
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentAPI)
}
