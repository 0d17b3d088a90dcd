package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/lead-pipeline/cmd/mainconfig"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	rt, err := mainconfig.BuildRuntime(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	worker := buffer.NewWorker(rt.Runner, rt.Queue, logger, buffer.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)

	if err := rt.Sweeper.Start(cfg.BufferSweepSchedule); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}
	defer rt.Sweeper.Stop()
	if err := rt.Refresher.Start(cfg.LeadRecencySchedule); err != nil {
		logger.Error("failed to start lead recency refresh", "error", err)
		os.Exit(1)
	}
	defer rt.Refresher.Stop()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("buffer worker started", "workers", cfg.WorkerCount, "memory_queue", cfg.UseMemoryQueue)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down buffer worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	if err := rt.Drain(doneCtx, worker); err != nil {
		logger.Error("buffer worker shutdown timed out", "error", err)
		return
	}
	logger.Info("buffer worker stopped")
}
