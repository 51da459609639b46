package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"shapes-debugger/internal/client"
	"shapes-debugger/internal/config"
	"shapes-debugger/internal/formatter"
	"shapes-debugger/internal/handler"
	"shapes-debugger/internal/metrics"
	"shapes-debugger/internal/middleware"
	"shapes-debugger/internal/resolver"
	"shapes-debugger/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("shapes-debugger"),
		kong.Description("Debugging reverse proxy for the Shapes API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newPrinter,
			newUpstream,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger writes to stderr so logs stay out of the traffic display.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

// newFxLogger only surfaces fx lifecycle events at warn level and above,
// unless debug logging is on.
func newFxLogger(logger *slog.Logger) fxevent.Logger {
	return &fxevent.SlogLogger{Logger: slog.New(levelFloor{
		Handler: logger.Handler(),
		min:     slog.LevelWarn,
	}).With("component", "fx")}
}

// levelFloor drops records below min unless the wrapped handler is at debug.
type levelFloor struct {
	slog.Handler
	min slog.Level
}

func (l levelFloor) Enabled(ctx context.Context, level slog.Level) bool {
	if l.Handler.Enabled(ctx, slog.LevelDebug) {
		return true
	}
	return level >= l.min && l.Handler.Enabled(ctx, level)
}

func (l levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelFloor{Handler: l.Handler.WithAttrs(attrs), min: l.min}
}

func (l levelFloor) WithGroup(name string) slog.Handler {
	return levelFloor{Handler: l.Handler.WithGroup(name), min: l.min}
}

func newPrinter(cfg *config.Config) (*formatter.Printer, error) {
	mode, err := formatter.ParseColorMode(cfg.Display.Color)
	if err != nil {
		return nil, err
	}

	var out io.Writer = color.Output
	if strings.ToLower(cfg.Display.Output) == "stderr" {
		out = color.Error
	}
	return formatter.NewPrinter(out, formatter.New(formatter.ResolveColors(mode))), nil
}

// newUpstream probes the candidates once, before the listener is opened.
func newUpstream(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *resolver.Upstream {
	r := resolver.New(nil, cfg.ProbeTimeout(), logger, m)
	return r.Resolve(context.Background(), cfg.Candidates(), cfg.Production())
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// Completions can take minutes and the response is only written once it
	// has been fully buffered, so writes are not time-limited.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger.With("component", "http")))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.HopByHop())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, up *resolver.Upstream, printer *formatter.Printer, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			printer.Banner(version, "http://"+addr, up.Candidate, up.Fallback)
			logger.Info("starting server",
				"addr", addr,
				"upstream", up.Candidate.URL,
				"label", up.Candidate.Label,
				"fallback", up.Fallback,
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
			return e.Shutdown(ctx)
		},
	})
}
