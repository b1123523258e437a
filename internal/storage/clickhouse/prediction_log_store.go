package clickhouse

import (
	"context"
	"fmt"
	"time"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

// PredictionLogStore implements storage.PredictionLogStore using ClickHouse.
// The log is append-only; MergeTree never enforces uniqueness and the
// serving path may legitimately rescore a transaction.
type PredictionLogStore struct {
	conn *Conn
}

// NewPredictionLogStore creates a new PredictionLogStore.
func NewPredictionLogStore(conn *Conn) *PredictionLogStore {
	return &PredictionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PredictionLogStore = (*PredictionLogStore)(nil)

// InsertBulk appends a batch of prediction records.
func (s *PredictionLogStore) InsertBulk(ctx context.Context, records []*domain.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.TransactionID == 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO prediction_log (
			transaction_id, probability, label, model_version, request_id, scored_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.TransactionID,
			r.Probability,
			r.Label,
			int32(r.ModelVersion),
			r.RequestID,
			r.ScoredAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRecent retrieves the most recent records, newest first.
func (s *PredictionLogStore) GetRecent(ctx context.Context, limit int) ([]*domain.PredictionRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT transaction_id, probability, label, model_version, request_id, scored_at
		FROM prediction_log
		ORDER BY scored_at DESC, transaction_id DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent predictions: %w", err)
	}
	defer rows.Close()

	var result []*domain.PredictionRecord
	for rows.Next() {
		var r domain.PredictionRecord
		var version int32
		var scoredAt time.Time
		if err := rows.Scan(&r.TransactionID, &r.Probability, &r.Label, &version, &r.RequestID, &scoredAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		r.ModelVersion = int(version)
		r.ScoredAt = scoredAt
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return result, nil
}

// CountByVersion returns how many predictions a model version served.
func (s *PredictionLogStore) CountByVersion(ctx context.Context, version int) (int64, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM prediction_log WHERE model_version = ?`, int32(version))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count predictions by version: %w", err)
	}
	return int64(count), nil
}
