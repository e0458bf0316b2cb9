// Package server exposes a movie graph snapshot over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Benny93/reelgraph/internal/ingestion"
)

const shutdownTimeout = 10 * time.Second

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validator.Struct(i)
}

// Server serves read-only queries against the current snapshot. The
// snapshot can be replaced at any time; in-flight requests finish against
// the one they started with.
type Server struct {
	echo     *echo.Echo
	snapshot atomic.Pointer[ingestion.Snapshot]
	logger   *zap.Logger
}

// New creates a server for snap.
func New(snap *ingestion.Snapshot, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: validator.New()}

	s := &Server{echo: e, logger: logger}
	s.snapshot.Store(snap)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))

	s.RegisterRoutes(e)
	return s
}

// Swap replaces the served snapshot.
func (s *Server) Swap(snap *ingestion.Snapshot) {
	s.snapshot.Store(snap)
	s.logger.Info("snapshot swapped",
		zap.Int("records", len(snap.Records)),
		zap.Int("nodes", snap.Graph.NodeCount()),
	)
}

// Snapshot returns the snapshot currently served.
func (s *Server) Snapshot() *ingestion.Snapshot {
	return s.snapshot.Load()
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("failed to shutdown server", zap.Error(err))
		return err
	}
	return nil
}
