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
	"github.com/pires/go-proxyproto"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"

	"gemini-proxy-go/internal/client"
	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/handler"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/middleware"
	"gemini-proxy-go/internal/service"
	"gemini-proxy-go/internal/tracing"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("gemini-proxy"),
		kong.Description("Transparent streaming reverse proxy for the Gemini API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newTracing,
			newRewriter,
			newSharedClient,
			fx.Annotate(client.NewUpstreamClient, fx.As(new(service.Dispatcher))),
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			newEcho,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
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

func newTracing(cfg *config.Config, logger *slog.Logger) (*tracing.Provider, error) {
	tp, err := tracing.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if tp.Enabled() {
		logger.Info("tracing enabled",
			"endpoint", cfg.Tracing.Endpoint,
			"sampling_rate", *cfg.Tracing.SamplingRate,
		)
	}
	return tp, nil
}

func newRewriter() (*service.Rewriter, error) {
	return service.NewRewriter(service.UpstreamHost)
}

// newSharedClient defers client construction to the first request. A
// construction failure means the process cannot proxy anything, so it
// stops the application with a non-zero exit code.
func newSharedClient(cfg *config.Config, m *metrics.Metrics, sd fx.Shutdowner, logger *slog.Logger) *client.SharedClient {
	return client.NewSharedClient(client.NewTransportFactory(cfg), m, func(err error) {
		logger.Error("upstream client construction failed, shutting down", "err", err)
		if serr := sd.Shutdown(fx.ExitCode(1)); serr != nil {
			logger.Error("shutdown request failed", "err", serr)
		}
	})
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays 0: streamed generations can legitimately run for minutes.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, middleware.SkipPath(cfg.Metrics.Path)))
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, tp *tracing.Provider, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			if cfg.Server.ProxyProtocol {
				ln = &proxyproto.Listener{Listener: ln, ReadHeaderTimeout: e.Server.ReadHeaderTimeout}
			}
			logger.Info("starting server",
				"addr", addr,
				"upstream", "https://"+service.UpstreamHost,
				"proxy_protocol", cfg.Server.ProxyProtocol,
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return multierr.Combine(
				e.Shutdown(ctx),
				tp.Shutdown(ctx),
			)
		},
	})
}
