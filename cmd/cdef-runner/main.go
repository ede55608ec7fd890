package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/T3-Labs/edge-av1/internal/dump"
	"github.com/T3-Labs/edge-av1/internal/runner"
	"github.com/T3-Labs/edge-av1/pkg/config"
	"github.com/T3-Labs/edge-av1/pkg/logger"
)

func main() {
	configFile := flag.String("config", "config.toml", "Path to the configuration file")
	stream := flag.String("stream", "synthetic", "Stream name used in dump keys")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.InitLogger(cfg.Log.Development); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	logger.Log.Infow("Configuration loaded",
		"config_file", *configFile,
		"threads", cfg.Decoder.Threads,
		"max_buffers", cfg.Pool.MaxBuffers,
		"row_lag", cfg.Cdef.RowLag,
		"dump", cfg.Dump.Enabled)

	if err := run(cfg, *stream); err != nil {
		logger.Log.Errorw("Decode failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

// run owns every resource that needs closing, so its defers have completed
// before main decides the exit code.
func run(cfg *config.Config, stream string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Address)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var dumper *dump.Writer
	if cfg.Dump.Enabled {
		var err error
		dumper, err = dump.NewWriterFromConfig(cfg, stream)
		if err != nil {
			return fmt.Errorf("create dump writer: %w", err)
		}
		defer dumper.Close()
	}

	r, err := runner.New(ctx, cfg, dumper)
	if err != nil {
		return fmt.Errorf("build decoder pipeline: %w", err)
	}

	go monitor(ctx, r)

	stats, err := r.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.L().Infow("Interrupted, shutting down", "stats", stats.String())
		return nil
	case err != nil:
		logger.L().Infow("Decode stopped", "stats", stats.String())
		return err
	}
	logger.L().Infow("Decode complete", "stats", stats.String())
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.L().Infow("Metrics server started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Errorw("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func monitor(ctx context.Context, r *runner.Runner) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		fields := []interface{}{
			"pool", r.PoolStats().String(),
			"decode", r.Stats().String(),
		}
		if ws, ok := r.WorkerStats(); ok {
			fields = append(fields, "workers", ws.String())
		}
		logger.L().Infow("System stats", fields...)
	}
}
