package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"llm-gateway-go/internal/client"
	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/model"
	"llm-gateway-go/internal/provider"
)

// ErrEntrypointRejected is returned when a relayed request does not carry the
// expected entrypoint token.
var ErrEntrypointRejected = errors.New("entrypoint token rejected")

// RelayService is the second hop of a chained deployment: it accepts requests
// from a trusted gateway and passes them to the upstream unchanged.
type RelayService struct {
	forwarder *client.Forwarder
	upstream  *url.URL
	token     string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(fwd *client.Forwarder, cfg *config.Config, logger *slog.Logger) (*RelayService, error) {
	u, err := url.Parse(cfg.Relay.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay upstream_url: %w", err)
	}
	return &RelayService{
		forwarder: fwd,
		upstream:  u,
		token:     cfg.Relay.EntrypointToken,
		timeout:   time.Duration(cfg.Relay.TimeoutSeconds) * time.Second,
		logger:    logger.With("component", "relay_service"),
	}, nil
}

// Forward checks the entrypoint token and relays pr. Path is the full inbound
// path; headers other than the token, Host and hop-by-hop ones are kept.
func (s *RelayService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	got := pr.Header.Get(provider.EntrypointHeader)
	if s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		return nil, ErrEntrypointRejected
	}

	header := pr.Header.Clone()
	model.StripHopByHop(header)
	header.Del(provider.EntrypointHeader)
	header.Del("Host")
	header.Del("Content-Length")

	u := *s.upstream
	u.Path = strings.TrimRight(u.Path, "/") + pr.Path
	u.RawPath = ""
	u.RawQuery = pr.RawQuery

	target := &model.Target{
		Provider: model.ProviderRelay,
		URL:      u.String(),
		Method:   pr.Method,
		Header:   header,
		Body:     pr.Body,
		Timeout:  s.timeout,
	}

	s.logger.Debug("relaying request", "path", pr.Path, "request_id", pr.RequestID)

	resp, err := s.forwarder.Forward(pr.Ctx, target)
	if err != nil {
		return nil, fmt.Errorf("relay: forward: %w", err)
	}
	return resp, nil
}
