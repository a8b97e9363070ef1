//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStorage creates a test storage instance with a fresh collection.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T, dimension int) (*QdrantStorage, string) {
	ctx := context.Background()
	storage, err := NewQdrantStorage(ctx, QdrantDialer{Host: "localhost", Port: 6334})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	name := "test-" + uuid.New().String()[:8]
	require.NoError(t, storage.CreateCollection(ctx, name, dimension), "Failed to create collection")
	t.Cleanup(func() {
		_ = storage.DropCollection(context.Background(), name)
		storage.Close()
	})

	return storage, name
}

func vectorOf(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPointSearchRoundTrip(t *testing.T) {
	storage, name := setupTestStorage(t, 8)
	ctx := context.Background()

	point := &Point{
		ID:       uuid.New().String(),
		Vector:   vectorOf(8, 0.1),
		Text:     "Paris is the capital of France.",
		DocPath:  "docs/france.txt",
		ParentID: uuid.New().String(),
		Position: 3,
		Metadata: map[string]string{"window": "wide context"},
	}
	require.NoError(t, storage.UpsertPoints(ctx, name, []*Point{point}))

	hits, err := storage.Search(ctx, name, vectorOf(8, 0.1), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit := hits[0]
	assert.Equal(t, point.ID, hit.ID)
	assert.Equal(t, point.Text, hit.Text)
	assert.Equal(t, point.DocPath, hit.DocPath)
	assert.Equal(t, point.ParentID, hit.ParentID)
	assert.Equal(t, point.Position, hit.Position)
	assert.Equal(t, "wide context", hit.Metadata["window"])
	assert.InDelta(t, 1.0, hit.Score, 1e-4)
}

func TestDropAndRecreate(t *testing.T) {
	storage, name := setupTestStorage(t, 4)
	ctx := context.Background()

	first := &Point{ID: uuid.New().String(), Vector: vectorOf(4, 1), Text: "first"}
	require.NoError(t, storage.UpsertPoints(ctx, name, []*Point{first}))

	require.NoError(t, storage.DropCollection(ctx, name))
	exists, err := storage.CollectionExists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, storage.CreateCollection(ctx, name, 4))
	second := &Point{ID: uuid.New().String(), Vector: vectorOf(4, 1), Text: "second"}
	require.NoError(t, storage.UpsertPoints(ctx, name, []*Point{second}))

	n, err := storage.Count(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	names, err := storage.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, name)
}

func TestSearchUnknownCollection(t *testing.T) {
	storage, _ := setupTestStorage(t, 4)

	_, err := storage.Search(context.Background(), "missing-"+uuid.New().String()[:8], vectorOf(4, 1), 5)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestDimensionValidation(t *testing.T) {
	storage, name := setupTestStorage(t, 4)

	mixed := []*Point{
		{ID: uuid.New().String(), Vector: vectorOf(4, 1)},
		{ID: uuid.New().String(), Vector: vectorOf(3, 1)},
	}
	err := storage.UpsertPoints(context.Background(), name, mixed)
	assert.ErrorIs(t, err, ErrDimensionMismatch, "Should reject mixed embedding dimensions")
}

func TestBatchUpsert(t *testing.T) {
	storage, name := setupTestStorage(t, 4)
	ctx := context.Background()

	// 250 points spans three upsert batches.
	points := make([]*Point, 250)
	for i := range points {
		points[i] = &Point{ID: uuid.New().String(), Vector: vectorOf(4, float32(i+1)), Position: i}
	}
	require.NoError(t, storage.UpsertPoints(ctx, name, points))

	n, err := storage.Count(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), n)
}
