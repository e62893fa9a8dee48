// Command taleforged is the long-running daemon counterpart to the
// cmd/taleforge CLI: it exposes the run-status correlation endpoint
// external job runners post back to (§4.5.5) and periodically sweeps
// runs against the task queue (§4.5.6), on an interval taken from its
// config file's reaper_interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jvs-project/taleforge/internal/bootstrap"
	"github.com/jvs-project/taleforge/pkg/config"
	"github.com/jvs-project/taleforge/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taleforged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/taleforge/taleforge.yaml", "path to the taleforge service config file")
	listenAddr := flag.String("listen", ":8090", "address to serve /healthz, /metrics and /webhooks/run-status on")
	flag.Parse()

	log, sync, err := logging.New()
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engines, err := bootstrap.Build(cfg, func(format string, args ...any) {
		log.Info(fmt.Sprintf(format, args...))
	})
	if err != nil {
		return fmt.Errorf("build engines: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(engines.Metrics.Gatherer(), promhttp.HandlerOpts{}))
	mux.Handle("/webhooks/run-status", engines.Runs.CorrelateHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		log.Info("starting http server", "addr", *listenAddr)
		if srvErr := srv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error(srvErr, "http server error")
		}
	}()
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}()

	interval := cfg.ReaperIntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("reaper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := engines.Runs.Sweep(ctx, ""); err != nil {
				log.Error(err, "reaper sweep failed")
			}
		}
	}
}
