package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/resumatch/cvscreen/internal/models"
)

type PGConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// PG is a pgvector-backed index. Each build drops and recreates the table, so
// the stored batch is always replaced as a whole.
type PG struct {
	config PGConfig
	pool   *pgxpool.Pool
	count  int
}

func OpenPG(ctx context.Context, config PGConfig) (*PG, error) {
	if config.TableName == "" {
		config.TableName = "cv_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &PG{
		config: config,
		pool:   pool,
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create vector extension: %v", err)
	}

	return vs, nil
}

// Loaded reports whether a previously built batch exists. Absence is a normal
// condition, not an error.
func (vs *PG) Loaded(ctx context.Context) (bool, error) {
	var regclass *string
	err := vs.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", vs.config.TableName).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("failed to check table: %v", err)
	}
	if regclass == nil {
		return false, nil
	}

	if err := vs.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)).Scan(&vs.count); err != nil {
		return false, fmt.Errorf("failed to count chunks: %v", err)
	}

	return vs.count > 0, nil
}

// Rebuild replaces the stored batch with the given chunks and embeddings.
func (vs *PG) Rebuild(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.config.TableName)); err != nil {
		return fmt.Errorf("failed to drop table: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, seq, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		vs.config.TableName)

	for i, chunk := range chunks {
		id := fmt.Sprintf("%s_%d", chunk.Source, chunk.Seq)

		_, err := tx.Exec(ctx, stmt,
			id,
			chunk.Source,
			chunk.Seq,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %v", err)
		}
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	vs.count = len(chunks)
	return nil
}

// Search returns the k nearest chunks by cosine distance, converted to a
// similarity score where higher means more similar.
func (vs *PG) Search(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}

	query := fmt.Sprintf(`
		SELECT source, seq, content, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(&sc.Chunk.Source, &sc.Chunk.Seq, &sc.Chunk.Text, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, sc)
	}

	return results, rows.Err()
}

func (vs *PG) Len() int {
	return vs.count
}

func (vs *PG) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
