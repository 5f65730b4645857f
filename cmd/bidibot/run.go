package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/bidibot/pkg/bot"
	"github.com/odvcencio/bidibot/pkg/config"
	"github.com/odvcencio/bidibot/pkg/observability"
	"github.com/odvcencio/bidibot/pkg/telemetry"
)

const (
	closeTimeout    = 5 * time.Second
	shutdownTimeout = 2 * time.Second
)

func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg, err := config.Resolve(opts.configPath)
	if err != nil {
		return nil, withExitCode(err, exitUsage)
	}

	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(fmt.Errorf("config validation: %w", err), exitUsage)
	}
	return cfg, nil
}

// applyFlags overrides cfg with flags given on the command line.
func applyFlags(cfg *config.Config, opts *cliOptions) {
	if opts.set["host"] {
		cfg.WebDriver.Host = opts.host
	}
	if opts.set["port"] {
		cfg.WebDriver.Port = opts.port
	}
	if opts.set["browser"] {
		cfg.Browser.Name = opts.browser
	}
	if opts.set["headless"] {
		cfg.Browser.Headless = opts.headless
	}
	if opts.set["insecure"] {
		cfg.Browser.AcceptInsecureCerts = opts.insecure
	}
	if opts.set["metrics-addr"] {
		cfg.Metrics.Addr = opts.metricsAddr
		cfg.Metrics.Enabled = opts.metricsAddr != ""
	}
	if opts.set["trace"] {
		cfg.Tracing.Enabled = opts.trace
	}
	if opts.set["log-level"] {
		cfg.Logging.Level = opts.logLevel
	}
}

func execute(ctx context.Context, cfg *config.Config, opts *cliOptions, stdout, stderr io.Writer) error {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return withExitCode(err, exitUsage)
	}
	logger := observability.NewLoggerWithWriter(stderr, "cli", cfg.Logging.Format, level)

	if cfg.Tracing.Enabled {
		tp, err := observability.NewTracerProvider("bidibot", version, stderr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	hub := telemetry.NewHub()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	caps := cfg.Capabilities()
	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	b := bot.New(caps, cfg.WebDriver.Host, cfg.Port(),
		bot.WithLogger(logger),
		bot.WithHub(hub),
		bot.WithClientConfig(clientCfg),
	)
	logger.Info("starting script",
		slog.String("bot_id", b.ID()),
		slog.String("webdriver", net.JoinHostPort(cfg.WebDriver.Host, strconv.Itoa(cfg.WebDriver.Port))),
		slog.Int("urls", len(opts.urls)),
	)

	var metricsListener net.Listener
	if cfg.Metrics.Enabled {
		metricsListener, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	scriptDone := make(chan struct{})

	g.Go(func() error {
		defer close(scriptDone)
		defer hub.Close()
		return runScript(gctx, b, opts.urls, opts.back)
	})

	g.Go(func() error {
		return writeEvents(stdout, events)
	})

	if metricsListener != nil {
		router := chi.NewRouter()
		router.Handle("/metrics", promhttp.Handler())
		router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", slog.String("addr", metricsListener.Addr().String()))

		g.Go(func() error {
			if err := srv.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-scriptDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	stats := hub.Stats()
	logger.Debug("telemetry delivered",
		slog.Uint64("published", stats.Published),
		slog.Uint64("dropped", stats.Dropped),
	)
	return err
}

// runScript opens the bot, visits every URL, optionally goes back once and always attempts Close.
func runScript(ctx context.Context, b *bot.Bot, urls []string, back bool) (err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := b.Close(closeCtx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := b.Open(ctx); err != nil {
		return err
	}
	for _, url := range urls {
		if err := b.Goto(ctx, url); err != nil {
			return err
		}
	}
	if back {
		if err := b.Back(ctx); err != nil {
			return err
		}
	}
	return nil
}

// writeEvents prints one JSON object per lifecycle event until the hub closes.
func writeEvents(w io.Writer, events <-chan telemetry.Event) error {
	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	return nil
}
