package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/apperr"
	"github.com/memscreen/memscreend/internal/model"
)

func TestMemoryEnsureCollectionDimensionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "emb:test", 4))
	err := s.EnsureCollection(ctx, "emb:test", 8)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.ConstraintViolation))
}

func TestMemoryQueryRankAndTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "emb:test", 2))
	require.NoError(t, s.Upsert(ctx, "emb:test", []model.VectorRecord{
		{ID: "a", Vector: []float32{1, 0}, RecordingID: "r1", Source: model.VectorSourceCombined},
		{ID: "b", Vector: []float32{1, 0}, RecordingID: "r2", Source: model.VectorSourceCombined},
		{ID: "c", Vector: []float32{0, 1}, RecordingID: "r3", Source: model.VectorSourceCombined},
	}))

	results, err := s.Query(ctx, "emb:test", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ID) // tie between a and b broken by id
	require.Equal(t, "b", results[1].ID)
}

func TestMemoryDeleteByFilterCascade(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.EnsureCollection(ctx, "emb:test", 2))
	require.NoError(t, s.Upsert(ctx, "emb:test", []model.VectorRecord{
		{ID: "a", Vector: []float32{1, 0}, RecordingID: "r1"},
		{ID: "b", Vector: []float32{0, 1}, RecordingID: "r2"},
	}))

	require.NoError(t, s.DeleteByFilter(ctx, "emb:test", map[string]string{"recording_id": "r1"}))
	results, err := s.Query(ctx, "emb:test", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ID)
}
