package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"llm-gateway-go/internal/accesscode"
	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/metrics"
	"llm-gateway-go/internal/model"
)

// ownerKey is the echo context key holding the authorized caller.
const ownerKey = "access_owner"

const codePrefix = "Bearer ak-"

// Owner returns the access-code owner recorded for the request, if any.
func Owner(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

// AccessCode returns the access-code gate. A disabled store lets every
// request through and schedules a reload; an empty store rejects everyone.
// The metrics parameter is optional.
func AccessCode(store *accesscode.Store, skipper echomw.Skipper, m *metrics.Metrics, logger *slog.Logger) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = echomw.DefaultSkipper
	}
	logger = logger.With("component", "auth")

	record := func(result string) {
		if m != nil {
			m.AuthDecisions.WithLabelValues(result).Inc()
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			table := store.Snapshot()
			if table == nil {
				store.TriggerReload()
				record("disabled")
				return next(c)
			}

			var code string
			if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, codePrefix) {
				code = auth[len(codePrefix):]
			}
			if code == "" {
				record("missing")
				return c.String(http.StatusUnauthorized, "UnAuthorized")
			}

			owner, ok := table.Lookup(code)
			if !ok {
				record("rejected")
				logger.Warn("access denied", "path", c.Request().URL.Path, "remote_ip", c.RealIP())
				return c.String(http.StatusForbidden, "Code '"+model.EscapeText(code)+"' not allowed.")
			}

			record("allowed")
			c.Set(ownerKey, owner)
			return next(c)
		}
	}
}

// AuthSkipper exempts operational endpoints and, when the relay is enabled,
// relay paths from the access-code gate.
func AuthSkipper(cfg *config.Config) echomw.Skipper {
	exact := map[string]bool{
		"/healthz":      true,
		"/proxy/status": true,
	}
	if cfg.Metrics.Enabled {
		exact[cfg.Metrics.Path] = true
	}
	relay := cfg.Relay.Enabled

	return func(c echo.Context) bool {
		p := c.Request().URL.Path
		if exact[p] {
			return true
		}
		return relay && (p == "/v1" || strings.HasPrefix(p, "/v1/"))
	}
}
