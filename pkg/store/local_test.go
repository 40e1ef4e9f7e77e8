package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIndex(t *testing.T) *store.Local {
	t.Helper()

	chunks := []models.Chunk{
		{Source: "data/raw/alice.txt", Seq: 0, Text: "Go backend developer"},
		{Source: "data/raw/bob.txt", Seq: 0, Text: "frontend designer"},
		{Source: "data/raw/alice.txt", Seq: 1, Text: "distributed systems"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.8, 0.6, 0},
	}

	index, err := store.NewLocal(chunks, vectors)
	require.NoError(t, err)
	return index
}

func TestNewLocalValidation(t *testing.T) {
	_, err := store.NewLocal([]models.Chunk{{Text: "x"}}, nil)
	assert.ErrorContains(t, err, "length mismatch")

	_, err = store.NewLocal(nil, nil)
	assert.ErrorContains(t, err, "empty index")

	_, err = store.NewLocal(
		[]models.Chunk{{Text: "a"}, {Text: "b"}},
		[][]float32{{1, 0}, {1, 0, 0}},
	)
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestLocalSearch(t *testing.T) {
	index := sampleIndex(t)
	assert.Equal(t, 3, index.Len())

	results, err := index.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Exact match first, then the partially aligned chunk.
	assert.Equal(t, "Go backend developer", results[0].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
	assert.Equal(t, "distributed systems", results[1].Chunk.Text)
	assert.InDelta(t, 0.8, results[1].Similarity, 1e-6)
}

func TestLocalSearchKLargerThanIndex(t *testing.T) {
	index := sampleIndex(t)

	results, err := index.Search(context.Background(), []float32{0, 1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "frontend designer", results[0].Chunk.Text)
}

func TestLocalSearchStableTies(t *testing.T) {
	chunks := []models.Chunk{
		{Source: "a.txt", Seq: 0, Text: "first"},
		{Source: "b.txt", Seq: 0, Text: "second"},
	}
	vectors := [][]float32{{1, 0}, {1, 0}}

	index, err := store.NewLocal(chunks, vectors)
	require.NoError(t, err)

	results, err := index.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Equal similarities keep insertion order.
	assert.Equal(t, "first", results[0].Chunk.Text)
	assert.Equal(t, "second", results[1].Chunk.Text)
}

func TestSnapshotRoundTrip(t *testing.T) {
	index := sampleIndex(t)
	path := filepath.Join(t.TempDir(), "index", "cvs.idx")

	require.NoError(t, index.Save(path))

	loaded, err := store.LoadLocal(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, index.Len(), loaded.Len())

	query := []float32{0.8, 0.6, 0}
	want, err := index.Search(context.Background(), query, 3)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshotReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvs.idx")

	first := sampleIndex(t)
	require.NoError(t, first.Save(path))

	second, err := store.NewLocal(
		[]models.Chunk{{Source: "only.txt", Text: "only chunk"}},
		[][]float32{{1}},
	)
	require.NoError(t, err)
	require.NoError(t, second.Save(path))

	loaded, err := store.LoadLocal(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadLocalMissingSnapshot(t *testing.T) {
	loaded, err := store.LoadLocal(filepath.Join(t.TempDir(), "does-not-exist.idx"))

	// Nothing indexed yet is a normal condition, not an error.
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}
