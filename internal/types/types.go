package types

import (
	"context"

	"github.com/resumatch/cvscreen/internal/models"
)

// Core interfaces

// Index is an immutable, queryable view of one indexed CV batch. A handle is
// acquired once per query; rebuilds produce a fresh handle rather than
// mutating a live one.
type Index interface {
	Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error)
	Len() int
}

// Embedder turns text into vectors in the index's embedding space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is the generative model behind the scoring step. It receives a
// fully built prompt and returns the raw completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Ingester loads the staging directory and splits its documents into chunks.
type Ingester interface {
	Ingest(ctx context.Context) ([]models.Chunk, error)
}
