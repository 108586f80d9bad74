// Package handler implements the gateway's HTTP endpoints.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"llm-gateway-go/internal/middleware"
	"llm-gateway-go/internal/model"
	"llm-gateway-go/internal/provider"
	"llm-gateway-go/internal/router"
	"llm-gateway-go/internal/service"
)

// ProxyHandler serves the provider prefixes.
type ProxyHandler struct {
	service *service.GatewayService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.GatewayService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Enterprise serves /api/azure/*.
func (h *ProxyHandler) Enterprise(c echo.Context) error {
	return h.handle(c, model.ProviderEnterprise)
}

// Generic serves /api/openai/*.
func (h *ProxyHandler) Generic(c echo.Context) error {
	return h.handle(c, model.ProviderGeneric)
}

func (h *ProxyHandler) handle(c echo.Context, kind model.ProviderKind) error {
	pr, err := newProxyRequest(c, kind.Prefix())
	if err != nil {
		return err
	}

	resp, err := h.service.Forward(kind, pr)
	if err != nil {
		return h.mapError(c, err)
	}
	return streamResponse(c, resp, h.logger)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var nf *router.NotFoundError
	if errors.As(err, &nf) {
		return c.String(http.StatusNotFound, nf.Error())
	}

	var um *provider.UnsupportedModelError
	if errors.As(err, &um) {
		h.logger.Info("unsupported model", "model", um.Model, "correlation_id", middleware.CorrelationID(c))
		return c.String(http.StatusBadRequest, um.Error())
	}

	return internalError(c, h.logger, err)
}

// newProxyRequest buffers the body so a retry can resend it. BodyLimit bounds
// the read; its error is returned unchanged so echo replies 413.
func newProxyRequest(c echo.Context, prefix string) (*model.ProxyRequest, error) {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, err
	}

	return &model.ProxyRequest{
		Ctx:       req.Context(),
		Method:    req.Method,
		Path:      strings.TrimPrefix(req.URL.Path, prefix),
		RawQuery:  req.URL.RawQuery,
		Header:    req.Header,
		Body:      body,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}, nil
}

// streamResponse relays resp to the caller chunk by chunk, flushing after each
// write. Headers already set by the gateway (CORS, request id, security) take
// precedence over upstream ones. If the upstream fails after the status line
// has been sent, the connection is aborted so the caller sees a truncated
// response rather than a clean end of body.
func streamResponse(c echo.Context, resp *model.ProxyResponse, logger *slog.Logger) error {
	defer func() { _ = resp.Body.Close() }()

	w := c.Response()
	dst := w.Header()
	for key, vals := range resp.Header {
		if _, set := dst[key]; set {
			continue
		}
		dst[key] = vals
	}
	w.WriteHeader(resp.StatusCode)
	w.Flush()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Debug("client write failed", "err", werr, "path", c.Request().URL.Path)
				return nil
			}
			w.Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if c.Request().Context().Err() != nil {
				logger.Debug("client disconnected during stream", "path", c.Request().URL.Path)
				return nil
			}
			logger.Error("upstream stream interrupted",
				"err", rerr,
				"path", c.Request().URL.Path,
				"bytes_out", w.Size,
				"correlation_id", middleware.CorrelationID(c),
			)
			panic(http.ErrAbortHandler)
		}
	}
}
