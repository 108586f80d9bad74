package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/accesscode"
	"llm-gateway-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	store   *accesscode.Store
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, store *accesscode.Store, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, store: store, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status      string           `json:"status"`
	Version     string           `json:"version"`
	Providers   []providerStatus `json:"providers"`
	AccessCodes accessCodeStatus `json:"access_codes"`
	Relay       bool             `json:"relay"`
}

type providerStatus struct {
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	Configured bool   `json:"configured"`
}

type accessCodeStatus struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Status reports the build version, provider configuration and the current
// authorization state. Secrets are never included.
func (h *HealthHandler) Status(c echo.Context) error {
	table := h.store.Snapshot()

	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Providers: []providerStatus{
			{
				Name:       "azure",
				Prefix:     "/api/azure",
				Configured: h.cfg.Azure.APIKey != "" && (h.cfg.Azure.ResourceName != "" || h.cfg.Azure.Endpoint != ""),
			},
			{
				Name:       "openai",
				Prefix:     "/api/openai",
				Configured: h.cfg.OpenAI.Token != "",
			},
		},
		AccessCodes: accessCodeStatus{
			State: table.State().String(),
			Count: table.Len(),
		},
		Relay: h.cfg.Relay.Enabled,
	})
}
