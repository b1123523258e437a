package memory

import (
	"context"
	"sync"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

// PredictionLogStore is an in-memory implementation of storage.PredictionLogStore.
type PredictionLogStore struct {
	mu   sync.RWMutex
	data []*domain.PredictionRecord // append order
}

// NewPredictionLogStore creates a new in-memory prediction log.
func NewPredictionLogStore() *PredictionLogStore {
	return &PredictionLogStore{}
}

// Compile-time interface check.
var _ storage.PredictionLogStore = (*PredictionLogStore)(nil)

// InsertBulk appends a batch of prediction records.
func (s *PredictionLogStore) InsertBulk(_ context.Context, records []*domain.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.TransactionID == 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		rec := *r
		s.data = append(s.data, &rec)
	}
	return nil
}

// GetRecent retrieves the most recent records, newest first.
func (s *PredictionLogStore) GetRecent(_ context.Context, limit int) ([]*domain.PredictionRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.data)
	if limit > n {
		limit = n
	}
	result := make([]*domain.PredictionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		rec := *s.data[i]
		result = append(result, &rec)
	}
	return result, nil
}

// CountByVersion returns how many predictions a model version served.
func (s *PredictionLogStore) CountByVersion(_ context.Context, version int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.data {
		if r.ModelVersion == version {
			count++
		}
	}
	return count, nil
}
