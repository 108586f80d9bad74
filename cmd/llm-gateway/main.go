package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"llm-gateway-go/internal/accesscode"
	"llm-gateway-go/internal/client"
	"llm-gateway-go/internal/config"
	"llm-gateway-go/internal/handler"
	"llm-gateway-go/internal/metrics"
	"llm-gateway-go/internal/middleware"
	"llm-gateway-go/internal/provider"
	"llm-gateway-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	dotenv := config.LoadDotenv(".env")

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("llm-gateway"),
		kong.Description("Gateway for OpenAI-compatible and Azure OpenAI backends."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.NopLogger,
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newAccessCodes,
			client.NewForwarder,
			provider.NewEnterprise,
			provider.NewGeneric,
			service.NewGatewayService,
			service.NewRelayService,
			handler.NewProxyHandler,
			handler.NewRelayHandler,
			handler.NewHealthHandler,
			newEcho,
		),
		fx.Invoke(
			func(logger *slog.Logger) {
				if dotenv != "" {
					logger.Info("loaded environment file", "path", dotenv)
				}
			},
			handler.RegisterRoutes,
			warnConfigPermissions,
			watchAccessCodes,
			startServer,
		),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newAccessCodes loads the access-code store and keeps the gauge in step with
// every swap.
func newAccessCodes(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *accesscode.Store {
	store := accesscode.New(cfg, logger)
	store.OnSwap(func(t *accesscode.Table) {
		if t == nil {
			m.AccessCodes.Set(-1)
			return
		}
		m.AccessCodes.Set(float64(t.Len()))
	})
	return store
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, store *accesscode.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	// Inbound timeouts to mitigate slow-client attacks. WriteTimeout stays 0
	// so long completion streams are not cut off.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	e.Use(middleware.CORSGate(cfg.CORS))
	e.Use(middleware.AccessCode(store, middleware.AuthSkipper(cfg), m, logger))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func watchAccessCodes(lc fx.Lifecycle, cfg *config.Config, store *accesscode.Store, logger *slog.Logger) {
	if !cfg.Auth.Watch || store.Path() == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := store.Watch(ctx); err != nil {
					logger.Warn("access-code watcher stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	var tlsServer *http.Server

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go serve(logger, "http", func() error { return e.Server.Serve(ln) })

			if !cfg.Server.TLSEnabled() {
				return nil
			}
			tlsAddr := cfg.Server.TLSAddr()
			tlsLn, err := net.Listen("tcp", tlsAddr)
			if err != nil {
				_ = ln.Close()
				return fmt.Errorf("bind %s: %w", tlsAddr, err)
			}
			tlsServer = &http.Server{
				Handler:           e,
				ReadTimeout:       e.Server.ReadTimeout,
				ReadHeaderTimeout: e.Server.ReadHeaderTimeout,
				IdleTimeout:       e.Server.IdleTimeout,
			}
			logger.Info("starting TLS server", "addr", tlsAddr)
			go serve(logger, "https", func() error {
				return tlsServer.ServeTLS(tlsLn, cfg.Server.CertFile, cfg.Server.KeyFile)
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			var errs []error
			if tlsServer != nil {
				errs = append(errs, tlsServer.Shutdown(ctx))
			}
			errs = append(errs, e.Shutdown(ctx))
			return errors.Join(errs...)
		},
	})
}

func serve(logger *slog.Logger, name string, run func() error) {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "listener", name, "err", err)
	}
}
