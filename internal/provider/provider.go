// Package provider builds upstream targets for each backend family.
package provider

import (
	"errors"

	"llm-gateway-go/internal/model"
)

// ErrNotConfigured is returned when a provider is asked for a target but its
// upstream has not been configured.
var ErrNotConfigured = errors.New("provider not configured")

// Adapter translates a routed operation into a concrete upstream call.
type Adapter interface {
	Name() string
	Kind() model.ProviderKind
	// ResolveTarget builds the upstream call for req. The returned target is
	// owned by the caller.
	ResolveTarget(req *model.ProxyRequest, op model.Operation) (*model.Target, error)
	// ListModels returns a synthesized catalog. ok is false when the provider
	// passes the listing through to its upstream instead.
	ListModels() (catalog []byte, ok bool)
}

// UnsupportedModelError is returned when a logical model has no deployment.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return "unsupported model " + model.EscapeText(e.Model)
}

// clientIdentityHeaders reveal the original caller to the upstream.
var clientIdentityHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Proto",
	"X-Forwarded-Host",
	"X-Real-Ip",
	"X-Origin-Host",
}
