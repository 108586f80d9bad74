// Package middleware provides Echo middleware for the gateway's gates,
// logging, metrics and security headers.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// CorrelationHeader carries a caller-supplied id that is echoed in error
// bodies and logs.
const CorrelationHeader = "X-Api-RequestId"

// CorrelationID returns the caller-supplied correlation id or "(empty)".
func CorrelationID(c echo.Context) string {
	if id := c.Request().Header.Get(CorrelationHeader); id != "" {
		return id
	}
	return "(empty)"
}

// RequestLogger returns an Echo middleware that logs each request with slog.
// The line is written on the way out even when a stream is aborted mid-body.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()

			defer func() {
				req := c.Request()
				res := c.Response()

				attrs := []any{
					"method", req.Method,
					"path", req.URL.Path,
					"status", res.Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", res.Header().Get(echo.HeaderXRequestID),
					"correlation_id", CorrelationID(c),
					"remote_ip", c.RealIP(),
					"bytes_out", res.Size,
				}
				if owner := Owner(c); owner != "" {
					attrs = append(attrs, "user", owner)
				}
				logger.Info("request", attrs...)
			}()

			return next(c)
		}
	}
}
