package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"medthread/internal/activities"
	"medthread/internal/app"
	"medthread/internal/config"
	"medthread/internal/logger"
	"medthread/internal/workflows"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	logger.Init(logger.FromEnv())
	log := logger.Named("worker")
	cfg := config.Load()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, reg)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("pipeline setup failed")
		os.Exit(1)
	}
	defer a.Close()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Error().Err(err).Str("address", cfg.TemporalAddress).Msg("temporal dial failed")
		os.Exit(1)
	}
	defer c.Close()

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	// one batch activity at a time: concurrency lives inside the orchestrator
	// and its shared limiter
	host, _ := os.Hostname()
	hostQueue := activities.HostTaskQueue(cfg.TemporalTaskQueue, host)
	acts := activities.New(a.Orchestrator).WithHostQueue(hostQueue)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{MaxConcurrentActivityExecutionSize: 1})
	workflows.Register(w)
	activities.Register(w, acts)

	// replays read the backup from local disk, so they come back to this host
	if hostQueue != cfg.TemporalTaskQueue {
		hw := worker.New(c, hostQueue, worker.Options{MaxConcurrentActivityExecutionSize: 1})
		activities.RegisterReplay(hw, acts)
		if err := hw.Start(); err != nil {
			log.Error().Err(err).Str("queue", hostQueue).Msg("host worker failed to start")
			os.Exit(1)
		}
		defer hw.Stop()
	}

	log.Info().
		Str("address", cfg.TemporalAddress).
		Str("queue", cfg.TemporalTaskQueue).
		Str("host_queue", hostQueue).
		Str("provider", a.Provider.String()).
		Str("metrics", cfg.MetricsAddr).
		Msg("worker listening")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
