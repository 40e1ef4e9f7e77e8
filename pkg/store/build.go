package store

import (
	"context"
	"fmt"

	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/internal/types"
)

type BuildConfig struct {
	Backend      string // "local" or "pgvector"
	SnapshotPath string
	ConnString   string
	TableName    string
	VectorDim    int
	BatchSize    int
}

// Build embeds every chunk and publishes a fresh index, replacing whatever
// batch the backend held before. It returns the queryable handle. onProgress,
// when non-nil, is called with the number of chunks embedded so far.
func Build(ctx context.Context, config BuildConfig, embedder types.Embedder, chunks []models.Chunk, onProgress func(done int)) (types.Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}

	batchSize := config.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-i)
		for _, chunk := range chunks[i:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		vectors = append(vectors, batch...)

		if onProgress != nil {
			onProgress(end)
		}
	}

	switch config.Backend {
	case "pgvector":
		pg, err := OpenPG(ctx, PGConfig{
			ConnString: config.ConnString,
			TableName:  config.TableName,
			VectorDim:  config.VectorDim,
			BatchSize:  config.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		if err := pg.Rebuild(ctx, chunks, vectors); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil

	default:
		local, err := NewLocal(chunks, vectors)
		if err != nil {
			return nil, err
		}
		if err := local.Save(config.SnapshotPath); err != nil {
			return nil, err
		}
		return local, nil
	}
}

// Load returns the last published index, or (nil, nil) when nothing has been
// indexed yet.
func Load(ctx context.Context, config BuildConfig) (types.Index, error) {
	switch config.Backend {
	case "pgvector":
		pg, err := OpenPG(ctx, PGConfig{
			ConnString: config.ConnString,
			TableName:  config.TableName,
			VectorDim:  config.VectorDim,
			BatchSize:  config.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		loaded, err := pg.Loaded(ctx)
		if err != nil {
			pg.Close()
			return nil, err
		}
		if !loaded {
			pg.Close()
			return nil, nil
		}
		return pg, nil

	default:
		local, err := LoadLocal(config.SnapshotPath)
		if err != nil {
			return nil, err
		}
		if local == nil {
			return nil, nil
		}
		return local, nil
	}
}
