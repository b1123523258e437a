// Package main merges the transaction and identity CSV exports into the
// raw training table, records its schema snapshot, and optionally loads
// the rows into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fraudlens/internal/config"
	"fraudlens/internal/frame"
	"fraudlens/internal/ingest"
	"fraudlens/internal/schema"
	"fraudlens/internal/storage/migrations"
	pgstore "fraudlens/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	transactionsPath := flag.String("transactions", "", "Transactions CSV path (required)")
	identityPath := flag.String("identity", "", "Identity CSV path (optional)")
	outputPath := flag.String("output", "", "Merged CSV output path (optional)")
	schemaPath := flag.String("schema-path", envOr("SCHEMA_PATH", "schemas.yaml"), "Schema registry file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (optional)")
	batchSize := flag.Int("batch-size", 1000, "Insert batch size")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *transactionsPath == "" {
		logger.Fatal("--transactions is required")
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

	cfg := config.DefaultTransformConfig()

	start := time.Now()
	transactions, err := frame.ReadCSVFile(*transactionsPath)
	if err != nil {
		logger.Fatalf("Failed to read transactions: %v", err)
	}
	logger.Printf("Read %d transactions (%d columns)", transactions.NumRows(), transactions.NumCols())

	var identity *frame.Frame
	if *identityPath != "" {
		identity, err = frame.ReadCSVFile(*identityPath)
		if err != nil {
			logger.Fatalf("Failed to read identity: %v", err)
		}
		logger.Printf("Read %d identity rows (%d columns)", identity.NumRows(), identity.NumCols())
	}

	merged, err := ingest.Merge(transactions, identity, cfg.IDColumn)
	if err != nil {
		logger.Fatalf("Merge failed: %v", err)
	}
	logger.Printf("Merged table: %d rows, %d columns in %v", merged.NumRows(), merged.NumCols(), time.Since(start).Round(time.Millisecond))

	registry := schema.NewRegistry(*schemaPath, logger)
	if err := registry.SaveFrame("raw", merged); err != nil {
		logger.Fatalf("Failed to save raw schema: %v", err)
	}
	logger.Printf("Saved raw schema snapshot to %s", *schemaPath)

	if *outputPath != "" {
		if err := merged.WriteCSVFile(*outputPath); err != nil {
			logger.Fatalf("Failed to write merged CSV: %v", err)
		}
		logger.Printf("Wrote merged CSV to %s", *outputPath)
	}

	if *postgresDSN != "" {
		if err := loadPostgres(ctx, *postgresDSN, merged, cfg, *batchSize, logger); err != nil {
			logger.Fatalf("Postgres load failed: %v", err)
		}
	}

	logger.Println("Ingest complete")
}

func loadPostgres(ctx context.Context, dsn string, merged *frame.Frame, cfg config.TransformConfig, batchSize int, logger *log.Logger) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	txs, err := ingest.ToTransactions(merged, cfg)
	if err != nil {
		return err
	}

	store := pgstore.NewTransactionStore(pool)
	inserted := 0
	for i := 0; i < len(txs); i += batchSize {
		end := i + batchSize
		if end > len(txs) {
			end = len(txs)
		}
		if err := store.InsertBulk(ctx, txs[i:end]); err != nil {
			return err
		}
		inserted = end
		if inserted%10000 == 0 {
			logger.Printf("Inserted %d/%d transactions", inserted, len(txs))
		}
	}
	logger.Printf("Inserted %d transactions into postgres", inserted)
	return nil
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
