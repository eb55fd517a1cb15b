package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"apply_server/config"
	"apply_server/internal/bootstrap"
	"apply_server/pkg/logger"
)

func main() {
	mode := flag.String("mode", "all", "run mode: api, worker or all")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	deps, err := bootstrap.Build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent("main")

	var wrk *bootstrap.Worker
	var workerMetrics func() any
	if *mode == "worker" || *mode == "all" {
		wrk = bootstrap.NewWorker(deps)
		wrk.Start(context.Background())
		workerMetrics = wrk.Metrics
	}

	var api *bootstrap.API
	apiErr := make(chan error, 1)
	if *mode == "api" || *mode == "all" {
		api = bootstrap.NewAPI(deps, workerMetrics)
		go func() {
			apiErr <- api.Start()
		}()
	}

	if api == nil && wrk == nil {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down: signal=%s", sig)
	case err := <-apiErr:
		if err != nil {
			log.Error("api server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Error("api shutdown: %v", err)
		}
	}
	if wrk != nil {
		wrk.Stop()
	}
	deps.Close(shutdownCtx)
	log.Info("shutdown complete")
}
