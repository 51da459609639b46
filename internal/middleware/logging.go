// Package middleware provides Echo middleware for the debugger's HTTP server.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"shapes-debugger/internal/model"
)

// RequestLogger returns an Echo middleware that writes one slog line per
// exchange. The exchange ID is the one shown in the console output.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", responseStatus(c, err),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
				"bytes_in", req.ContentLength,
				"bytes_out", res.Size,
			}
			if id, ok := c.Get(model.ExchangeIDKey).(string); ok {
				attrs = append(attrs, "exchange_id", id)
			}
			logger.Info("request", attrs...)

			return err
		}
	}
}
