package memory

import (
	"context"
	"sort"
	"sync"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.RawTransaction
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[int64]*domain.RawTransaction),
	}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// Insert adds a new transaction. Returns ErrDuplicateKey if exists.
func (s *TransactionStore) Insert(_ context.Context, tx *domain.RawTransaction) error {
	if tx == nil || tx.TransactionID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tx.TransactionID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[tx.TransactionID] = copyTransaction(tx)
	return nil
}

// InsertBulk adds multiple transactions atomically. Fails entire batch on any duplicate.
func (s *TransactionStore) InsertBulk(_ context.Context, txs []*domain.RawTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[int64]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.TransactionID == 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[tx.TransactionID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[tx.TransactionID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[tx.TransactionID] = struct{}{}
	}

	// Second pass: insert all
	for _, tx := range txs {
		s.data[tx.TransactionID] = copyTransaction(tx)
	}
	return nil
}

// GetByID retrieves a transaction by ID. Returns ErrNotFound if not exists.
func (s *TransactionStore) GetByID(_ context.Context, transactionID int64) (*domain.RawTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.data[transactionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyTransaction(tx), nil
}

// GetByTimeRange retrieves transactions within [start, end], ordered by TransactionDT ASC.
func (s *TransactionStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.RawTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawTransaction
	for _, tx := range s.data {
		if tx.TransactionDT >= start && tx.TransactionDT <= end {
			result = append(result, copyTransaction(tx))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TransactionDT != result[j].TransactionDT {
			return result[i].TransactionDT < result[j].TransactionDT
		}
		return result[i].TransactionID < result[j].TransactionID
	})
	return result, nil
}

// Count returns the number of stored transactions.
func (s *TransactionStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// copyTransaction deep-copies a transaction including its payload map.
func copyTransaction(tx *domain.RawTransaction) *domain.RawTransaction {
	out := *tx
	if tx.IsFraud != nil {
		label := *tx.IsFraud
		out.IsFraud = &label
	}
	if tx.Payload != nil {
		out.Payload = make(map[string]any, len(tx.Payload))
		for k, v := range tx.Payload {
			out.Payload[k] = v
		}
	}
	return &out
}
