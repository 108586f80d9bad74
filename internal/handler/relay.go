package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/middleware"
	"llm-gateway-go/internal/service"
)

// RelayHandler serves /v1/* when the gateway runs as a second hop.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle relays the request upstream. A missing or wrong entrypoint token is
// answered as if no upstream were reachable.
func (h *RelayHandler) Handle(c echo.Context) error {
	pr, err := newProxyRequest(c, "")
	if err != nil {
		return err
	}

	resp, err := h.service.Forward(pr)
	if errors.Is(err, service.ErrEntrypointRejected) {
		h.logger.Warn("entrypoint token rejected", "remote_ip", c.RealIP())
		return c.String(http.StatusBadGateway, "no unhealthy upstream\nRequestId:"+middleware.CorrelationID(c))
	}
	if err != nil {
		return internalError(c, h.logger, err)
	}
	return streamResponse(c, resp, h.logger)
}
