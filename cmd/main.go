package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comeapi/loadbalancer/config"
	"github.com/comeapi/loadbalancer/internal/dispatch"
	"github.com/comeapi/loadbalancer/internal/handler"
	"github.com/comeapi/loadbalancer/internal/healthcheck"
	"github.com/comeapi/loadbalancer/internal/httpserver"
	"github.com/comeapi/loadbalancer/internal/metrics"
	"github.com/comeapi/loadbalancer/internal/pool"
	"github.com/comeapi/loadbalancer/internal/ratelimit"
	"github.com/comeapi/loadbalancer/pkg/logger"
)

// writeTimeoutSlack keeps the server write timeout above the proxy
// timeout so a slow generation is never cut off mid-response.
const writeTimeoutSlack = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		log.Error("Failed to build backend registry", slog.Any("err", err))
		os.Exit(1)
	}

	interval, err := cfg.HealthCheckInterval()
	if err != nil {
		log.Error("Invalid health check interval", slog.Any("err", err))
		os.Exit(1)
	}

	probeTimeout, err := cfg.HealthCheckTimeout()
	if err != nil {
		log.Error("Invalid health check timeout", slog.Any("err", err))
		os.Exit(1)
	}

	proxyTimeout, err := cfg.ProxyTimeout()
	if err != nil {
		log.Error("Invalid proxy timeout", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	checker := healthcheck.New(registry, interval, probeTimeout, log, collector)
	go checker.Run(ctx)

	dispatcher := dispatch.New(registry, proxyTimeout, log, collector)
	balancerHandler := handler.New(log, dispatcher, registry)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		log.Info("Rate limiting enabled",
			slog.Float64("rps", cfg.RateLimit.RPS),
			slog.Int("burst", cfg.RateLimit.Burst))
	}

	router := setupRouter(balancerHandler, collector, limiter, log)

	srv, err := httpserver.New(cfg.Server.Address, router, proxyTimeout+writeTimeoutSlack)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Load balancer listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("backends", registry.Len()),
		slog.String("health_check_interval", interval.String()))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config, log *slog.Logger) (*pool.Registry, error) {
	urls := cfg.BackendURLs()

	backends := make([]*pool.Backend, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid backend URL %q: %w", raw, err)
		}

		backends = append(backends, pool.New(u))
		log.Info("Backend registered", slog.String("url", raw))
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}

	return pool.NewRegistry(backends, cfg.HealthCheck.FailureThreshold), nil
}
