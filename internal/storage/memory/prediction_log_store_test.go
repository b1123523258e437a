package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

func sampleRecord(id int64, version int) *domain.PredictionRecord {
	return &domain.PredictionRecord{
		TransactionID: id,
		Probability:   0.12,
		ModelVersion:  version,
		RequestID:     "req-1",
		ScoredAt:      time.Now().UTC(),
	}
}

func TestPredictionLogGetRecentOrder(t *testing.T) {
	s := NewPredictionLogStore()
	ctx := context.Background()

	batch := []*domain.PredictionRecord{sampleRecord(1, 1), sampleRecord(2, 1), sampleRecord(3, 1)}
	if err := s.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	got, err := s.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].TransactionID != 3 || got[1].TransactionID != 2 {
		t.Errorf("order = %d, %d, want newest first", got[0].TransactionID, got[1].TransactionID)
	}
}

func TestPredictionLogGetRecentOverLimit(t *testing.T) {
	s := NewPredictionLogStore()
	ctx := context.Background()

	if err := s.InsertBulk(ctx, []*domain.PredictionRecord{sampleRecord(1, 1)}); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	got, err := s.GetRecent(ctx, 50)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("records = %d, want 1", len(got))
	}

	if _, err := s.GetRecent(ctx, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("zero limit err = %v", err)
	}
}

func TestPredictionLogCountByVersion(t *testing.T) {
	s := NewPredictionLogStore()
	ctx := context.Background()

	batch := []*domain.PredictionRecord{sampleRecord(1, 1), sampleRecord(2, 2), sampleRecord(3, 2)}
	if err := s.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	n, err := s.CountByVersion(ctx, 2)
	if err != nil {
		t.Fatalf("CountByVersion: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestPredictionLogInvalidRecord(t *testing.T) {
	s := NewPredictionLogStore()
	err := s.InsertBulk(context.Background(), []*domain.PredictionRecord{{}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
