// Package main trains a fraud model from a labeled raw CSV and publishes
// a new versioned artifact bundle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fraudlens/internal/artifacts"
	"fraudlens/internal/config"
	"fraudlens/internal/frame"
	"fraudlens/internal/ingest"
	"fraudlens/internal/observability"
	"fraudlens/internal/schema"
	pgstore "fraudlens/internal/storage/postgres"
	"fraudlens/internal/tracking"
	"fraudlens/internal/training"
)

func main() {
	loadEnvFile()

	dataPath := flag.String("data", "", "Labeled raw CSV path")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Load training rows from PostgreSQL instead of CSV")
	startDT := flag.Int64("start-dt", 0, "Earliest TransactionDT to load from postgres")
	endDT := flag.Int64("end-dt", math.MaxInt64, "Latest TransactionDT to load from postgres")
	schemaPath := flag.String("schema-path", envOr("SCHEMA_PATH", "schemas.yaml"), "Schema registry file")
	artifactsDir := flag.String("artifacts-dir", envOr("ARTIFACTS_DIR", "artifacts"), "Artifact store root")
	runsFile := flag.String("runs-file", envOr("RUNS_FILE", "runs.jsonl"), "Run tracking log")
	modelName := flag.String("model-name", "", "Override model name")
	testSize := flag.Float64("test-size", 0, "Override holdout fraction")
	epochs := flag.Int("epochs", 0, "Override training epochs")
	learningRate := flag.Float64("learning-rate", 0, "Override learning rate")
	flag.Parse()

	logger := log.New(os.Stdout, "[train] ", log.LstdFlags|log.Lshortfile)

	if *dataPath == "" && *postgresDSN == "" {
		logger.Fatal("--data or --postgres-dsn is required")
	}
	if *dataPath != "" && *postgresDSN != "" {
		logger.Fatal("--data and --postgres-dsn are mutually exclusive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling", sig)
		cancel()
	}()

	trainingCfg := config.DefaultTrainingConfig()
	if *modelName != "" {
		trainingCfg.ModelName = *modelName
	}
	if *testSize > 0 {
		trainingCfg.TestSize = *testSize
	}
	if *epochs > 0 {
		trainingCfg.Epochs = *epochs
	}
	if *learningRate > 0 {
		trainingCfg.LearningRate = *learningRate
	}

	store, err := artifacts.NewLocalStore(*artifactsDir, logger)
	if err != nil {
		logger.Fatalf("Failed to open artifact store: %v", err)
	}

	trainer, err := training.NewTrainer(training.Options{
		Transform:  config.DefaultTransformConfig(),
		Preprocess: config.DefaultPreprocessConfig(),
		Training:   trainingCfg,
		Registry:   schema.NewRegistry(*schemaPath, logger),
		Store:      store,
		Tracker:    tracking.NewFileTracker(*runsFile, logger),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create trainer: %v", err)
	}

	var raw *frame.Frame
	if *postgresDSN != "" {
		raw, err = loadPostgres(ctx, *postgresDSN, *startDT, *endDT, logger)
		if err != nil {
			logger.Fatalf("Failed to load training data from postgres: %v", err)
		}
	} else {
		logger.Printf("Reading training data from %s", *dataPath)
		raw, err = frame.ReadCSVFile(*dataPath)
		if err != nil {
			logger.Fatalf("Failed to read training data: %v", err)
		}
	}
	logger.Printf("Loaded %d rows, %d columns", raw.NumRows(), raw.NumCols())

	start := time.Now()
	result, err := trainer.Run(ctx, raw)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordTrainingRun("failure", elapsed.Seconds())
		logger.Fatalf("Training failed: %v", err)
	}
	observability.RecordTrainingRun("success", elapsed.Seconds())

	logger.Printf("Published %s (run %s) in %v", result.Key, result.RunID, elapsed.Round(time.Millisecond))
	logger.Printf("Train rows: %d, test rows: %d, baseline fraud rate: %.4f",
		result.TrainRows, result.TestRows, result.BaselineFraudRate)
	logger.Printf("Accuracy: %.4f, precision: %.4f, recall: %.4f, F1: %.4f, ROC-AUC: %.4f",
		result.Metrics.Accuracy, result.Metrics.Precision, result.Metrics.Recall,
		result.Metrics.F1, result.Metrics.ROCAUC)
}

// loadPostgres reads the labeled transactions in [startDT, endDT] back
// into a raw frame.
func loadPostgres(ctx context.Context, dsn string, startDT, endDT int64, logger *log.Logger) (*frame.Frame, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	logger.Printf("Loading transactions with TransactionDT in [%d, %d]", startDT, endDT)
	txs, err := pgstore.NewTransactionStore(pool).GetByTimeRange(ctx, startDT, endDT)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("no transactions in range [%d, %d]", startDT, endDT)
	}
	return ingest.FromTransactions(txs, config.DefaultTransformConfig()), nil
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
