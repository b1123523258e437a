package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudlens/internal/domain"
	"fraudlens/internal/storage"
)

func testRecord(id int64, version int, scoredAt time.Time) *domain.PredictionRecord {
	return &domain.PredictionRecord{
		TransactionID: id,
		Probability:   0.87,
		Label:         1,
		ModelVersion:  version,
		RequestID:     "req-abc",
		ScoredAt:      scoredAt,
	}
}

func TestPredictionLogStore_InsertBulkAndGetRecent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPredictionLogStore(conn)

	base := time.Now().UTC().Truncate(time.Millisecond)
	batch := []*domain.PredictionRecord{
		testRecord(1, 1, base),
		testRecord(2, 1, base.Add(time.Second)),
		testRecord(3, 1, base.Add(2*time.Second)),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	got, err := store.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].TransactionID)
	assert.Equal(t, int64(2), got[1].TransactionID)
	assert.Equal(t, 0.87, got[0].Probability)
	assert.Equal(t, uint8(1), got[0].Label)
	assert.Equal(t, "req-abc", got[0].RequestID)
}

func TestPredictionLogStore_CountByVersion(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPredictionLogStore(conn)

	now := time.Now().UTC()
	require.NoError(t, store.InsertBulk(ctx, []*domain.PredictionRecord{
		testRecord(1, 1, now),
		testRecord(2, 2, now),
		testRecord(3, 2, now),
	}))

	count, err := store.CountByVersion(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.CountByVersion(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPredictionLogStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPredictionLogStore(conn)

	err := store.InsertBulk(ctx, []*domain.PredictionRecord{{}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.GetRecent(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPredictionLogStore_EmptyBatchNoop(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPredictionLogStore(conn)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}
