package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/model"
)

// EntrypointHeader carries the shared secret between chained gateways.
const EntrypointHeader = "X-Entrypoint-Token"

// Generic forwards requests unchanged to an OpenAI-compatible base URL.
type Generic struct {
	baseURL    *url.URL
	token      string
	orgID      string
	entrypoint string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGeneric creates the generic adapter.
func NewGeneric(cfg *config.Config, logger *slog.Logger) (*Generic, error) {
	u, err := url.Parse(cfg.OpenAI.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse openai base_url: %w", err)
	}

	token := cfg.OpenAI.Token
	if token != "" && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}

	return &Generic{
		baseURL:    u,
		token:      token,
		orgID:      cfg.OpenAI.OrgID,
		entrypoint: cfg.OpenAI.EntrypointToken,
		timeout:    time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
		logger:     logger.With("component", "openai_provider"),
	}, nil
}

func (p *Generic) Name() string             { return "openai" }
func (p *Generic) Kind() model.ProviderKind { return model.ProviderGeneric }

// ListModels is never synthesized; /v1/models goes upstream.
func (p *Generic) ListModels() ([]byte, bool) {
	return nil, false
}

// ResolveTarget appends the request path and query to the base URL and
// replaces the caller's credential with the configured token.
func (p *Generic) ResolveTarget(req *model.ProxyRequest, op model.Operation) (*model.Target, error) {
	u := *p.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + req.Path
	u.RawPath = ""
	u.RawQuery = req.RawQuery

	header := ForwardHeaders(req.Header)
	header.Del("Authorization")
	if p.token != "" {
		header.Set("Authorization", p.token)
	}
	if p.orgID != "" {
		header.Set("OpenAI-Organization", p.orgID)
	}
	if p.entrypoint != "" {
		header.Set(EntrypointHeader, p.entrypoint)
	}

	p.logger.Debug("resolved target",
		"operation", op.String(),
		"path", req.Path,
		"request_id", req.RequestID,
	)

	return &model.Target{
		Provider: model.ProviderGeneric,
		URL:      u.String(),
		Method:   req.Method,
		Header:   header,
		Body:     req.Body,
		Timeout:  p.timeout,
	}, nil
}

// ForwardHeaders copies inbound headers that are safe to send upstream. Host,
// hop-by-hop, client-identifying and entrypoint headers are dropped. The
// caller decides what to do with Authorization.
func ForwardHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	model.StripHopByHop(dst)
	dst.Del("Host")
	dst.Del("Content-Length")
	dst.Del(EntrypointHeader)
	for _, name := range clientIdentityHeaders {
		dst.Del(name)
	}
	return dst
}
