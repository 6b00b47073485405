// Package main is the entry point for the weather API server.
//
// It loads the configuration (resolving secrets from SSM outside local
// mode), connects the MongoDB record store, builds the HTTP chassis and, when
// enabled, starts the MQTT ingest subscriber. The HTTP server, the subscriber
// and the signal watcher run in one errgroup; the first failure or signal
// stops them all.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"weatherapi/internal/api/handlers"
	"weatherapi/internal/config"
	"weatherapi/internal/core"
	"weatherapi/internal/ingest"
	"weatherapi/internal/store"
	"weatherapi/internal/weather"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("weather API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	st, err := store.Connect(startCtx, cfg.Mongo, logger)
	if err != nil {
		return fmt.Errorf("connecting record store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("record store close failed", "error", err)
		}
	}()

	if err := st.EnsureIndexes(startCtx); err != nil {
		return fmt.Errorf("ensuring indexes: %w", err)
	}

	svc := weather.NewService(st, cfg.Mongo.Collection, logger)

	probes := []core.HealthProbe{st}
	var subscriber *ingest.Subscriber
	if cfg.MQTT.Enabled {
		subscriber = ingest.NewSubscriber(cfg.MQTT, svc, nil, logger)
		probes = append(probes, subscriber)
	}

	srv, err := buildServer(cfg, logger, svc, probes...)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, srv, cfg, logger)
	})
	if subscriber != nil {
		g.Go(func() error {
			return subscriber.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// secretProvider returns the SSM provider outside local mode. The region
// comes straight from the environment since the config is not loaded yet.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// buildServer wires the chassis: rate limiter, health probes and the weather
// routes under /v1/weather.
func buildServer(cfg *config.Config, logger *slog.Logger, svc handlers.WeatherServiceInterface, probes ...core.HealthProbe) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Security.RateLimitRPS > 0 {
		srv.RateLimitStore = core.NewMemoryRateLimitStore(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}
	srv.HealthProbes = probes

	weatherHandler := handlers.NewWeatherHandler(svc, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Route("/weather", weatherHandler.RegisterRoutes)
	})

	srv.MountRoutes()
	return srv, nil
}

// serveHTTP runs the HTTP server until ctx is done, then shuts it down
// gracefully.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// newLogger builds a colored tint logger in local mode and a JSON logger
// everywhere else.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if cfg.IsLocal() {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(
		"service", cfg.Service,
		"env", cfg.Environment,
		"version", cfg.Build.Version,
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
