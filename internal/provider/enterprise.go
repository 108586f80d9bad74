package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/model"
)

// Enterprise targets per-deployment endpoints of an Azure-style provider.
type Enterprise struct {
	endpoint    string
	apiKey      string
	deployments map[string]string
	timeout     time.Duration
	catalog     []byte
	logger      *slog.Logger
}

// NewEnterprise creates the enterprise adapter and renders its catalog once.
func NewEnterprise(cfg *config.Config, logger *slog.Logger) (*Enterprise, error) {
	endpoint := strings.TrimRight(cfg.Azure.Endpoint, "/")
	if endpoint == "" && cfg.Azure.ResourceName != "" {
		endpoint = "https://" + cfg.Azure.ResourceName + "." + cfg.Azure.Domain
	}

	deployments := make(map[string]string, len(cfg.Azure.Deployments))
	for name, d := range cfg.Azure.Deployments {
		deployments[name] = d
	}

	catalog, err := buildCatalog(deployments)
	if err != nil {
		return nil, fmt.Errorf("render model catalog: %w", err)
	}

	return &Enterprise{
		endpoint:    endpoint,
		apiKey:      cfg.Azure.APIKey,
		deployments: deployments,
		timeout:     time.Duration(cfg.Azure.TimeoutSeconds) * time.Second,
		catalog:     catalog,
		logger:      logger.With("component", "azure_provider"),
	}, nil
}

func (p *Enterprise) Name() string             { return "azure" }
func (p *Enterprise) Kind() model.ProviderKind { return model.ProviderEnterprise }

// ListModels returns the synthesized catalog.
func (p *Enterprise) ListModels() ([]byte, bool) {
	return p.catalog, true
}

// ResolveTarget reads the model from the JSON body and maps it to a
// deployment URL. The request body is forwarded as-is.
func (p *Enterprise) ResolveTarget(req *model.ProxyRequest, op model.Operation) (*model.Target, error) {
	opPath := op.DeploymentPath()
	if opPath == "" {
		return nil, fmt.Errorf("operation %s has no deployment path", op)
	}

	name, stream, err := decodeModel(req.Body)
	if err != nil {
		return nil, err
	}

	deployment := p.deployments[name]
	if deployment == "" {
		return nil, &UnsupportedModelError{Model: name}
	}
	if p.endpoint == "" {
		return nil, fmt.Errorf("azure: %w", ErrNotConfigured)
	}

	u := p.endpoint + "/openai/deployments/" + url.PathEscape(deployment) + "/" + opPath +
		"?api-version=" + config.AzureAPIVersion

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("api-key", p.apiKey)
	if accept := req.Header.Get("Accept"); accept != "" {
		header.Set("Accept", accept)
	}

	p.logger.Debug("resolved deployment",
		"model", name,
		"deployment", deployment,
		"operation", op.String(),
		"stream", stream,
		"request_id", req.RequestID,
	)

	return &model.Target{
		Provider: model.ProviderEnterprise,
		URL:      u,
		Method:   req.Method,
		Header:   header,
		Body:     req.Body,
		Timeout:  p.timeout,
	}, nil
}

// decodeModel extracts the model name from a JSON request body. An empty body
// or an absent model yields "". A model that is not a string is returned in
// its raw JSON form so it can never match a deployment. Only a body that is
// not a JSON object is an error.
func decodeModel(data []byte) (string, bool, error) {
	if len(data) == 0 {
		return "", false, nil
	}
	var body struct {
		Model  json.RawMessage `json:"model"`
		Stream any             `json:"stream"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", false, fmt.Errorf("decode request body: %w", err)
	}
	stream, _ := body.Stream.(bool)

	raw := bytes.TrimSpace(body.Model)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", stream, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return string(raw), stream, nil
	}
	return name, stream, nil
}
