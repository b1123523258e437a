package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
// The sparse raw columns live in a JSONB payload; only the always-present
// key columns are typed.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const insertTransactionSQL = `
	INSERT INTO transactions (
		transaction_id, transaction_dt, transaction_amt, is_fraud, payload
	) VALUES ($1, $2, $3, $4, $5)
`

// Insert adds a new transaction. Returns ErrDuplicateKey if transaction_id exists.
func (s *TransactionStore) Insert(ctx context.Context, tx *domain.RawTransaction) error {
	if tx == nil || tx.TransactionID == 0 {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(tx.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertTransactionSQL,
		tx.TransactionID,
		tx.TransactionDT,
		tx.TransactionAmt,
		tx.IsFraud,
		payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// InsertBulk adds multiple transactions atomically. Fails entire batch on any duplicate.
func (s *TransactionStore) InsertBulk(ctx context.Context, txs []*domain.RawTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbtx.Rollback(ctx)

	for _, tx := range txs {
		if tx == nil || tx.TransactionID == 0 {
			return storage.ErrInvalidInput
		}
		payload, err := json.Marshal(tx.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		_, err = dbtx.Exec(ctx, insertTransactionSQL,
			tx.TransactionID,
			tx.TransactionDT,
			tx.TransactionAmt,
			tx.IsFraud,
			payload,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transaction in bulk: %w", err)
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(ctx context.Context, transactionID int64) (*domain.RawTransaction, error) {
	query := `
		SELECT transaction_id, transaction_dt, transaction_amt, is_fraud, payload
		FROM transactions
		WHERE transaction_id = $1
	`

	row := s.pool.QueryRow(ctx, query, transactionID)
	tx, err := scanTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return tx, nil
}

// GetByTimeRange retrieves transactions within [start, end], ordered by TransactionDT ASC.
func (s *TransactionStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.RawTransaction, error) {
	query := `
		SELECT transaction_id, transaction_dt, transaction_amt, is_fraud, payload
		FROM transactions
		WHERE transaction_dt >= $1 AND transaction_dt <= $2
		ORDER BY transaction_dt ASC, transaction_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get transactions by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.RawTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

// Count returns the number of stored transactions.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// scanTransaction scans one row into a RawTransaction.
func scanTransaction(row pgx.Row) (*domain.RawTransaction, error) {
	var tx domain.RawTransaction
	var payload []byte

	if err := row.Scan(&tx.TransactionID, &tx.TransactionDT, &tx.TransactionAmt, &tx.IsFraud, &payload); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &tx.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &tx, nil
}
