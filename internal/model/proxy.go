// Package model defines shared types for the gateway.
package model

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ProviderKind identifies a backend family.
type ProviderKind string

const (
	// ProviderEnterprise is the deployment-based backend served under /api/azure.
	ProviderEnterprise ProviderKind = "azure"
	// ProviderGeneric is the OpenAI-compatible backend served under /api/openai.
	ProviderGeneric ProviderKind = "openai"
	// ProviderRelay is the second-hop passthrough served under /v1.
	ProviderRelay ProviderKind = "relay"
)

// Prefix returns the inbound path prefix the provider is mounted under.
func (k ProviderKind) Prefix() string {
	switch k {
	case ProviderEnterprise:
		return "/api/azure"
	case ProviderGeneric:
		return "/api/openai"
	}
	return ""
}

// Operation is a routed API operation.
type Operation int

const (
	OpUnknown Operation = iota
	OpChatCompletion
	OpCompletion
	OpListModels
)

func (o Operation) String() string {
	switch o {
	case OpChatCompletion:
		return "chat_completion"
	case OpCompletion:
		return "completion"
	case OpListModels:
		return "list_models"
	}
	return "unknown"
}

// DeploymentPath returns the path segment appended after a deployment name.
func (o Operation) DeploymentPath() string {
	switch o {
	case OpChatCompletion:
		return "chat/completions"
	case OpCompletion:
		return "completions"
	}
	return ""
}

// ProxyRequest represents a client request to be forwarded upstream.
// Path has the provider prefix already stripped.
type ProxyRequest struct {
	Ctx       context.Context
	Method    string
	Path      string
	RawQuery  string // inbound query, forwarded verbatim
	Header    http.Header
	Body      []byte
	RequestID string
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Target is a fully resolved upstream call. It is built once per request and
// must not be mutated after it is handed to the forwarder.
type Target struct {
	Provider ProviderKind
	URL      string
	Method   string
	Header   http.Header
	Body     []byte
	Timeout  time.Duration
}

// NewBody returns a fresh reader over the target body. Each attempt gets its
// own reader so a retry resends the full payload.
func (t *Target) NewBody() io.Reader {
	if len(t.Body) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(t.Body)
}

// EscapeText renders caller-supplied text for a plain-text error body.
// Printable ASCII passes through unchanged; quotes, control and non-ASCII
// characters use Go escape syntax.
func EscapeText(s string) string {
	q := strconv.QuoteToASCII(s)
	return q[1 : len(q)-1]
}

// EscapePath renders a request path for a plain-text error body. Printable
// characters, non-ASCII included, pass through so the reply still contains
// the path as requested; quotes, backslashes, control characters and invalid
// UTF-8 are escaped.
func EscapePath(s string) string {
	q := strconv.Quote(s)
	return q[1 : len(q)-1]
}
