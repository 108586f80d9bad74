// Package service implements the gateway's forwarding pipeline.
package service

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"llm-gateway-go/internal/client"
	"llm-gateway-go/internal/model"
	"llm-gateway-go/internal/provider"
	"llm-gateway-go/internal/router"
)

// GatewayService routes a prefix-stripped request to its provider adapter and
// forwards the resolved target.
type GatewayService struct {
	forwarder *client.Forwarder
	adapters  map[model.ProviderKind]provider.Adapter
	logger    *slog.Logger
}

// NewGatewayService creates a GatewayService serving the given adapters.
func NewGatewayService(fwd *client.Forwarder, azure *provider.Enterprise, openai *provider.Generic, logger *slog.Logger) *GatewayService {
	return &GatewayService{
		forwarder: fwd,
		adapters: map[model.ProviderKind]provider.Adapter{
			azure.Kind():  azure,
			openai.Kind(): openai,
		},
		logger: logger.With("component", "gateway_service"),
	}
}

// Forward handles pr for the provider mounted under kind. Routing failures
// return *router.NotFoundError; model resolution failures return
// *provider.UnsupportedModelError; transport failures return
// *client.UpstreamError. The caller must close the response body.
func (s *GatewayService) Forward(kind model.ProviderKind, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	adapter, ok := s.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %q", kind)
	}

	op, err := router.Route(pr.Method, pr.Path)
	if err != nil {
		return nil, err
	}

	if op == model.OpListModels {
		if catalog, ok := adapter.ListModels(); ok {
			return catalogResponse(catalog), nil
		}
	}

	target, err := adapter.ResolveTarget(pr, op)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve target: %w", adapter.Name(), err)
	}

	s.logger.Debug("forwarding request",
		"provider", adapter.Name(),
		"operation", op.String(),
		"request_id", pr.RequestID,
	)

	resp, err := s.forwarder.Forward(pr.Ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%s: forward: %w", adapter.Name(), err)
	}
	return resp, nil
}

func catalogResponse(catalog []byte) *model.ProxyResponse {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(catalog)))
	return &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(catalog)),
	}
}
