// Package client sends resolved targets upstream and retries transient
// transport failures once.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/metrics"
	"llm-gateway-go/internal/model"
)

// maxAttempts is one original attempt plus a single retry.
const maxAttempts = 2

// Forwarder sends targets to their upstream over a pooled HTTP client.
type Forwarder struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	backoff func() time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewForwarder creates a Forwarder with connection pooling. There is no
// client-wide timeout; each target carries its own header-phase timeout.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewForwarder(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Forwarder {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Forwarder{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "forwarder"),
		metrics: m,
		backoff: jitteredBackoff,
		sleep:   sleepContext,
	}
}

// jitteredBackoff returns a delay in [1000ms, 2500ms).
func jitteredBackoff() time.Duration {
	return time.Duration(1000+rand.IntN(1500)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Forward sends t and returns the upstream response. A retryable transport
// failure on the first attempt is retried once after a jittered delay; any
// other failure, or a second failure, is returned as *UpstreamError. Upstream
// HTTP errors are responses, not failures. The caller must close the body.
func (f *Forwarder) Forward(ctx context.Context, t *model.Target) (*model.ProxyResponse, error) {
	provider := string(t.Provider)

	for attempt := 1; ; attempt++ {
		resp, kind, err := f.send(ctx, t)
		if err == nil {
			return resp, nil
		}

		if !kind.Retryable() || attempt >= maxAttempts {
			if f.metrics != nil {
				f.metrics.UpstreamFailures.WithLabelValues(provider, string(kind)).Inc()
			}
			f.logger.Error("upstream request failed",
				"provider", provider,
				"kind", string(kind),
				"attempts", attempt,
				"err", err,
			)
			return nil, &UpstreamError{Kind: kind, Attempts: attempt, Err: err}
		}

		delay := f.backoff()
		f.logger.Warn("retrying upstream request",
			"provider", provider,
			"kind", string(kind),
			"delay_ms", delay.Milliseconds(),
			"err", err,
		)
		if f.metrics != nil {
			f.metrics.UpstreamRetries.WithLabelValues(provider, string(kind)).Inc()
		}
		if err := f.sleep(ctx, delay); err != nil {
			return nil, &UpstreamError{Kind: KindCanceled, Attempts: attempt, Err: err}
		}
	}
}

// send performs one attempt. The target timeout bounds the time until
// response headers; once they arrive the body may stream indefinitely and
// lives until the caller closes it or ctx ends.
func (f *Forwarder) send(ctx context.Context, t *model.Target) (*model.ProxyResponse, Kind, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(attemptCtx, t.Method, t.URL, t.NewBody())
	if err != nil {
		cancel(nil)
		return nil, KindOther, fmt.Errorf("build upstream request: %w", err)
	}
	if t.Header != nil {
		req.Header = t.Header.Clone()
	}

	var timer *time.Timer
	if t.Timeout > 0 {
		timer = time.AfterFunc(t.Timeout, func() { cancel(errHeaderTimeout) })
	}

	f.logger.Debug("upstream request",
		"provider", string(t.Provider),
		"method", t.Method,
		"url", t.URL,
	)

	start := time.Now()
	resp, err := f.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	inTime := timer == nil || timer.Stop()
	if f.metrics != nil {
		f.metrics.UpstreamDuration.WithLabelValues(string(t.Provider)).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		kind := classify(ctx, attemptCtx, err)
		cancel(nil)
		return nil, kind, fmt.Errorf("upstream request: %w", err)
	}
	if !inTime {
		// The timer fired as headers arrived; the body is already canceled.
		_ = resp.Body.Close()
		cancel(nil)
		return nil, KindTimeout, errHeaderTimeout
	}

	if f.metrics != nil {
		f.metrics.UpstreamResponses.WithLabelValues(string(t.Provider), strconv.Itoa(resp.StatusCode)).Inc()
	}

	header := resp.Header.Clone()
	header.Del("Www-Authenticate")
	model.StripHopByHop(header)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, "", nil
}

// cancelOnClose releases the attempt context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}
