package storage

import (
	"context"

	"fraudlens/internal/domain"
)

// TransactionStore provides access to raw transaction storage.
type TransactionStore interface {
	// Insert adds a new transaction. Returns ErrDuplicateKey if transaction_id exists.
	Insert(ctx context.Context, tx *domain.RawTransaction) error

	// InsertBulk adds multiple transactions atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, txs []*domain.RawTransaction) error

	// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, transactionID int64) (*domain.RawTransaction, error)

	// GetByTimeRange retrieves transactions with TransactionDT within [start, end]
	// (inclusive), ordered by TransactionDT ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.RawTransaction, error)

	// Count returns the number of stored transactions.
	Count(ctx context.Context) (int64, error)
}

// PredictionLogStore provides access to the prediction audit log.
type PredictionLogStore interface {
	// InsertBulk appends a batch of prediction records.
	InsertBulk(ctx context.Context, records []*domain.PredictionRecord) error

	// GetRecent retrieves the most recent records, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.PredictionRecord, error)

	// CountByVersion returns how many predictions a model version served.
	CountByVersion(ctx context.Context, version int) (int64, error)
}
