package store

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/resumatch/cvscreen/internal/models"
)

// snapshot is the on-disk layout of a local index.
type snapshot struct {
	Vectors [][]float32
	Chunks  []models.Chunk
}

// Local is an in-memory vector index over one CV batch, searched with
// brute-force cosine similarity and persisted as a single snapshot file.
type Local struct {
	vectors [][]float32
	norms   []float64
	chunks  []models.Chunk
}

// NewLocal builds a local index from chunks and their embeddings.
func NewLocal(chunks []models.Chunk, vectors [][]float32) (*Local, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, errors.New("cannot build an empty index")
	}

	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return nil, errors.New("vector dimension mismatch")
		}
	}

	return &Local{
		vectors: vectors,
		norms:   vectorNorms(vectors),
		chunks:  chunks,
	}, nil
}

// LoadLocal reads the snapshot at path. A missing snapshot is a normal
// condition (nothing indexed yet) and returns (nil, nil).
func LoadLocal(path string) (*Local, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return NewLocal(snap.Chunks, snap.Vectors)
}

// Save persists the index to path, wholesale-replacing any prior snapshot.
// The write goes to a temp file first so a crash never leaves a torn snapshot.
func (s *Local) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := snapshot{Vectors: s.vectors, Chunks: s.chunks}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Search returns the k most similar chunks, highest similarity first.
func (s *Local) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	queryNorm := norm(embedding)
	scores := make([]float64, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = cosine(v, embedding, s.norms[i], queryNorm)
	}

	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	// Stable so that equal scores keep insertion order
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})

	if k > len(idxs) {
		k = len(idxs)
	}

	results := make([]models.ScoredChunk, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, models.ScoredChunk{
			Chunk:      s.chunks[j],
			Similarity: scores[j],
		})
	}

	return results, nil
}

func (s *Local) Len() int {
	return len(s.chunks)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func vectorNorms(vectors [][]float32) []float64 {
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = norm(v)
	}
	return norms
}
