// Command gate runs the Gate: the HTTP-facing half of the gateway that
// turns inbound requests into HttpJobs, routes them to a worker_version
// via the shared store, and waits for a Worker to complete them.
//
// Usage:
//
//	gate
//
// Configuration is read entirely from the environment (see
// SPEC_FULL.md §7): STORE_HOST, STORE_PORT, STORE_DB, STORE_PASSWORD,
// STORE_USE_TLS, GATE_PORT (default 9000), DISPATCH_TIMEOUT_MS (default
// 30000), STRATEGY (default round_robin; also random, version_pinned,
// least_connection, weighted_response_time).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relaymesh/gatework/api"
	"github.com/relaymesh/gatework/dispatcher"
	"github.com/relaymesh/gatework/envconfig"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/observability"
	"github.com/relaymesh/gatework/store/redis"
	"github.com/relaymesh/gatework/strategy"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	env := envconfig.Load()
	cfg := env.GateConfig()

	client := goredis.NewClient(&goredis.Options{
		Addr:      env.StoreAddr(),
		Password:  env.StorePassword,
		DB:        env.StoreDB,
		TLSConfig: env.StoreTLSConfig(),
	})
	defer client.Close()

	st := redis.New(client, redis.WithLogger(logger))

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := st.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error("store unreachable at startup", slog.String("error", err.Error()))
		os.Exit(1)
	}

	extensions := ext.NewRegistry(logger)
	extensions.Register(observability.NewMetricsExtension())
	strat, err := strategy.New(strategy.Name(cfg.Strategy), st)
	if err != nil {
		logger.Error("invalid strategy", slog.String("error", err.Error()))
		os.Exit(1)
	}
	d := dispatcher.New(st, strat, cfg, extensions, logger)
	a := api.New(d, logger, nil)

	srv := &http.Server{
		Addr:              env.GateAddr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gate listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gate server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gate")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("gate shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	extensions.EmitShutdown(shutdownCtx)
	logger.Info("gate stopped")
}
