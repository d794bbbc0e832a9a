// Package main implements dispatcherd, the rate-limited RPC dispatch daemon.
// It selects a working Neo N3 endpoint, routes all RPC traffic through one
// adaptive dispatcher, keeps a refreshed chain-state snapshot, and serves a
// small status and metrics API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dispatch_layer/internal/chain"
	"github.com/R3E-Network/dispatch_layer/internal/config"
	"github.com/R3E-Network/dispatch_layer/internal/metrics"
	"github.com/R3E-Network/dispatch_layer/internal/middleware"
	"github.com/R3E-Network/dispatch_layer/internal/services/chainstate"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/dispatcher.yaml", "Path to config file")
	addr := flag.String("addr", "", "Listen address override")
	primary := flag.String("primary", "", "Primary RPC endpoint override")
	flag.Parse()

	// Environment variable overrides
	if v := os.Getenv("DISPATCHER_CONFIG"); v != "" {
		*configPath = v
	}
	if v := os.Getenv("DISPATCHER_ADDR"); v != "" {
		*addr = v
	}
	if v := os.Getenv("DISPATCHER_RPC_PRIMARY"); v != "" {
		*primary = v
	}

	cfg := config.LoadOrDefault(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *primary != "" {
		cfg.Chain.Primary = *primary
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pick a working endpoint once, at startup; per-request resilience is
	// the dispatcher's job.
	endpoint, err := chain.SelectEndpoint(ctx, log, cfg.Chain.Primary, cfg.Chain.Fallbacks,
		chain.FailoverConfig{ProbeTimeout: cfg.ProbeTimeout()})
	if err != nil {
		log.Error("no usable RPC endpoint", "error", err)
		os.Exit(1)
	}

	client, err := chain.NewClient(chain.Config{RPCURL: endpoint, Timeout: cfg.ChainTimeout()})
	if err != nil {
		log.Error("failed to build RPC client", "error", err)
		os.Exit(1)
	}

	dispatching := chain.NewDispatchingClient(client, cfg.DispatchConfig(), log.With("component", "dispatch"))
	defer dispatching.Close()
	metrics.RegisterDispatcher(endpoint, dispatching)

	refresher := chainstate.NewRefresher(dispatching, cfg.Refresher.Accounts,
		cfg.RefreshInterval(), log.With("component", "chainstate"))
	if err := refresher.Start(ctx); err != nil {
		log.Error("failed to start refresher", "error", err)
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst,
		log.With("component", "http"))
	limiter.StartCleanup(time.Minute, ctx.Done())

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Endpoint:   dispatching.URL(),
			QueueLen:   dispatching.QueueLen(),
			Tokens:     dispatching.Tokens(),
			RefillRate: dispatching.RefillRate(),
			Chain:      refresher.Snapshot(),
		})
	}).Methods(http.MethodGet)
	router.Use(limiter.Handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("dispatcherd listening", "addr", cfg.Server.Addr, "endpoint", endpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
	if err := refresher.Stop(shutdownCtx); err != nil {
		log.Warn("refresher shutdown incomplete", "error", err)
	}
}

type statusResponse struct {
	Endpoint   string              `json:"endpoint"`
	QueueLen   int                 `json:"queue_len"`
	Tokens     float64             `json:"tokens"`
	RefillRate float64             `json:"refill_rate"`
	Chain      chainstate.Snapshot `json:"chain"`
}
