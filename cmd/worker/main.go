// Command worker runs a Worker process: it advertises its registered
// (method, path) handlers to the shared route registry under a
// worker_version, then pulls dispatched jobs off its queue and executes
// them.
//
// Usage:
//
//	worker --version=v1
//
// Configuration is read entirely from the environment (see
// SPEC_FULL.md §7): STORE_HOST, STORE_PORT, STORE_DB, STORE_PASSWORD,
// STORE_USE_TLS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/relaymesh/gatework/envconfig"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/middleware"
	"github.com/relaymesh/gatework/observability"
	"github.com/relaymesh/gatework/store/redis"
	"github.com/relaymesh/gatework/worker"
)

func main() {
	var workerVersion string

	root := &cobra.Command{
		Use:   "worker",
		Short: "Run a gatework Worker process",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(workerVersion)
		},
	}

	defaultVersion, err := os.Hostname()
	if err != nil || defaultVersion == "" {
		defaultVersion = "v1"
	}
	root.Flags().StringVar(&workerVersion, "version", defaultVersion, "worker_version this process advertises to the route registry")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(workerVersion string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	env := envconfig.Load()
	cfg := env.WorkerConfig()

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
		return err
	}

	registry := worker.NewRegistry()
	registerHandlers(registry)

	ctx := context.Background()
	for _, r := range registry.Routes() {
		if err := st.Register(ctx, workerVersion, r.Method, r.Path); err != nil {
			logger.Error("failed to register route",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	extensions := ext.NewRegistry(logger)
	extensions.Register(observability.NewMetricsExtension())
	executor := worker.NewExecutor(registry, extensions, st, logger,
		middleware.Recover(logger),
		middleware.Logging(logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Timeout(logger, 30*time.Second),
	)
	pool := worker.NewPool(workerVersion, st, executor, extensions, logger,
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPopTimeout(cfg.QueuePopTimeout),
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
	)

	if err := pool.Start(ctx); err != nil {
		logger.Error("failed to start worker pool", slog.String("error", err.Error()))
		return err
	}
	logger.Info("worker started",
		slog.String("worker_version", workerVersion),
		slog.String("worker_id", pool.WorkerID().String()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Error("worker shutdown error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// registerHandlers wires the demo handlers this binary ships with. A
// production deployment replaces this with its own business handlers;
// the registration point (worker.Registry.Register) is the integration
// seam.
func registerHandlers(registry *worker.Registry) {
	registry.Register(http.MethodGet, "/widgets", func(_ context.Context, j *httpjob.HttpJob) (int, map[string]string, []byte, error) {
		body, err := json.Marshal(map[string]any{"widgets": []string{}, "request_id": j.RequestID})
		if err != nil {
			return 0, nil, nil, err
		}
		return http.StatusOK, map[string]string{"Content-Type": "application/json"}, body, nil
	})

	registry.Register(http.MethodPost, "/widgets", func(_ context.Context, j *httpjob.HttpJob) (int, map[string]string, []byte, error) {
		return http.StatusCreated, map[string]string{"Content-Type": "application/json"}, j.Body, nil
	})
}
