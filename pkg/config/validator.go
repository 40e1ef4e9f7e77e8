package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "model server base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid model server base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate store config
	switch c.Store.Backend {
	case "local":
		if c.Store.SnapshotPath == "" {
			errors = append(errors, ValidationError{
				Field:   "store.snapshot_path",
				Message: "snapshot_path is required for the local backend",
			})
		}
	case "pgvector":
		if c.Store.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Store.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Store.Backend),
		})
	}

	if c.Store.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Store.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate ingest config
	if c.Ingest.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate screening config
	if c.Screening.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "screening.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Screening.MinSimilarity < 0 || c.Screening.MinSimilarity > 1 {
		errors = append(errors, ValidationError{
			Field:   "screening.min_similarity",
			Message: "min_similarity must be between 0 and 1",
		})
	}

	if c.Screening.SelectThreshold < 0 || c.Screening.SelectThreshold > 10 {
		errors = append(errors, ValidationError{
			Field:   "screening.select_threshold",
			Message: "select_threshold must be between 0 and 10",
		})
	}

	if c.Screening.MergeOrder != "retrieval" && c.Screening.MergeOrder != "position" {
		errors = append(errors, ValidationError{
			Field:   "screening.merge_order",
			Message: fmt.Sprintf("merge_order must be retrieval or position, got %s", c.Screening.MergeOrder),
		})
	}

	if c.Screening.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "screening.workers",
			Message: "workers must be positive",
		})
	}

	return errors
}
