// Package api serves the chart over HTTP: the visible window of the
// session plus pan, zoom, timeframe and refresh commands.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server wraps the Echo HTTP server.
type Server struct {
	echo *echo.Echo
	addr string
	log  zerolog.Logger
}

// NewServer creates the server with handler's routes and /metrics over
// gatherer.
func NewServer(addr string, handler *Handler, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	log = log.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recoverPanics(log))
	e.Use(requestLogging(log))

	handler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, addr: addr, log: log}
}

// Start listens in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
