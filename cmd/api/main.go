package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/lead-pipeline/cmd/mainconfig"
	"github.com/wolfman30/lead-pipeline/internal/api/router"
	"github.com/wolfman30/lead-pipeline/internal/assignment"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/leads"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting lead-pipeline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	metricsHandler, registry := setupMetrics()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := mainconfig.BuildRuntime(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// With the in-memory queue the API process also drains it.
	var worker *buffer.Worker
	if cfg.UseMemoryQueue {
		worker = buffer.NewWorker(rt.Runner, rt.Queue, logger, buffer.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		if err := rt.Sweeper.Start(cfg.BufferSweepSchedule); err != nil {
			logger.Error("failed to start sweeper", "error", err)
			os.Exit(1)
		}
		defer rt.Sweeper.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerConfig(cfg, rt, metricsHandler, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "provider", rt.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := rt.Drain(shutdownCtx, worker); err != nil {
		logger.Error("background work did not finish before shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func routerConfig(cfg *appconfig.Config, rt *mainconfig.Runtime, metricsHandler http.Handler, logger *logging.Logger) *router.Config {
	return &router.Config{
		Logger:           logger,
		Buffers:          buffer.NewHandler(rt.Scheduler, rt.Conversations, rt.RunLookup(), rt.Metrics, logger),
		Conversations:    conversation.NewHandler(rt.Conversations, logger),
		Leads:            leads.NewHandler(rt.Scorer, logger),
		Assignment:       assignment.NewHandler(rt.Validator, logger),
		MetricsHandler:   metricsHandler,
		OperatorSecret:   cfg.AdminJWTSecret,
		WebhookToken:     cfg.WebhookToken,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookBurst:     cfg.WebhookBurst,
		Ready:            rt.Ready,
	}
}
