package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/logger"
)

const headerRequestID = "X-Request-ID"

// requestLogging tags each request with a trace ID (the client's
// X-Request-ID when present) and logs it on completion.
func requestLogging(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			tid := req.Header.Get(headerRequestID)
			if tid == "" {
				tid = logger.GenerateTraceID("req", start)
			}
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), tid)))
			c.Response().Header().Set(headerRequestID, tid)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Info().
				Str("trace_id", tid).
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}

// recoverPanics turns a handler panic into a 500.
func recoverPanics(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("panic in handler")
					_ = dataResponse(c, http.StatusInternalServerError, nil)
				}
			}()
			return next(c)
		}
	}
}
