package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, p := range []string{"/api/azure", "/api/azure/*"} {
		e.Any(p, proxy.Enterprise)
	}
	for _, p := range []string{"/api/openai", "/api/openai/*"} {
		e.Any(p, proxy.Generic)
	}

	if cfg.Relay.Enabled {
		e.Any("/v1/*", relay.Handle)
	}

	e.RouteNotFound("/*", NotFound)
}
