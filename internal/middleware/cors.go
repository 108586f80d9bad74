package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/config"
)

// CORSGate enforces the origin allow-list. With a list configured, requests
// from unlisted or missing origins get an empty 403 and allowed preflights are
// answered directly. Without a list every origin passes; AllowAll adds a
// wildcard Access-Control-Allow-Origin.
func CORSGate(cfg config.CORSConfig) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()

			if len(allowed) == 0 {
				if !cfg.AllowAll {
					return next(c)
				}
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
				if req.Method == http.MethodOptions {
					return preflight(c)
				}
				return next(c)
			}

			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !allowed[origin] {
				return c.NoContent(http.StatusForbidden)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			if req.Method == http.MethodOptions {
				return preflight(c)
			}
			return next(c)
		}
	}
}

func preflight(c echo.Context) error {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowMethods, "*")
	h.Set(echo.HeaderAccessControlAllowHeaders, "*")
	h.Set(echo.HeaderAccessControlMaxAge, "86400")
	return c.NoContent(http.StatusOK)
}
