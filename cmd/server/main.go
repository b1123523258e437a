// Package main runs the fraud scoring HTTP service: loads the latest
// published model bundle, serves predictions, and tracks score drift
// against the bundle's training reference.
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
	"strings"
	"syscall"
	"time"

	"fraudlens/internal/api"
	"fraudlens/internal/artifacts"
	"fraudlens/internal/config"
	"fraudlens/internal/drift"
	"fraudlens/internal/inference"
	"fraudlens/internal/observability"
	"fraudlens/internal/schema"
	"fraudlens/internal/storage"
	chstore "fraudlens/internal/storage/clickhouse"
	"fraudlens/internal/storage/memory"
	"fraudlens/internal/storage/migrations"
)

func main() {
	loadEnvFile()

	host := flag.String("host", envOr("HOST", "0.0.0.0"), "HTTP listen host")
	port := flag.Int("port", 8000, "HTTP listen port")
	artifactsDir := flag.String("artifacts-dir", envOr("ARTIFACTS_DIR", "artifacts"), "Artifact store root")
	cacheDir := flag.String("cache-dir", envOr("CACHE_DIR", "model_cache"), "Local bundle cache directory")
	schemaPath := flag.String("schema-path", envOr("SCHEMA_PATH", "schemas.yaml"), "Schema registry file")
	modelName := flag.String("model-name", envOr("MODEL_NAME", "fraud_model"), "Model name to serve")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory prediction log instead of ClickHouse")
	maxConcurrent := flag.Int("max-concurrent", 8, "Maximum concurrent prediction requests")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required (use --use-memory for in-memory prediction log)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	predLog, cleanup, err := createPredictionLog(ctx, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create prediction log store: %v", err)
	}
	defer cleanup()

	store, err := artifacts.NewLocalStore(*artifactsDir, logger)
	if err != nil {
		logger.Fatalf("Failed to open artifact store: %v", err)
	}

	transformCfg := config.DefaultTransformConfig()
	registry := schema.NewRegistry(*schemaPath, logger)

	// A missing model is not fatal: the server starts degraded and
	// answers 503 until a bundle is published and the process restarts.
	var monitor *drift.Monitor
	pipeline, err := inference.LoadLatest(ctx, store, *cacheDir, *modelName, transformCfg, registry, logger)
	switch {
	case err == nil:
		observability.RecordModelLoaded(pipeline.Version())
		monitor = drift.NewMonitor(config.DefaultDriftConfig(), pipeline.ReferenceScores(), pipeline.BaselineFraudRate(), logger)
		logger.Printf("Loaded %s_v%d (%d reference scores)", pipeline.ModelName(), pipeline.Version(), len(pipeline.ReferenceScores()))
	case errors.Is(err, artifacts.ErrNotFound):
		logger.Printf("No published model named %q, serving degraded", *modelName)
	default:
		logger.Fatalf("Failed to load model: %v", err)
	}

	handler := api.NewHandler(pipeline, monitor, predLog, transformCfg, *maxConcurrent, logger)
	server := api.NewServer(api.ServerConfig{
		Host:         *host,
		Port:         *port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}, handler, logger)

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Printf("Listening on %s:%d", *host, *port)
	err = server.Start()
	done <- err

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createPredictionLog builds the prediction log store, running ClickHouse
// migrations when a real backend is configured.
func createPredictionLog(ctx context.Context, dsn string, useMemory bool) (storage.PredictionLogStore, func(), error) {
	if useMemory {
		return memory.NewPredictionLogStore(), func() {}, nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return chstore.NewPredictionLogStore(conn), func() { conn.Close() }, nil
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
