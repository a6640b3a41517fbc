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

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 16384",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid LLM base URL",
			})
		}
	}

	switch c.Store.Backend {
	case "local":
		if c.Store.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "store.dir",
				Message: "store dir is required for the local backend",
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
			Message: fmt.Sprintf("unknown store backend: %s", c.Store.Backend),
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

	if c.Store.SearchK < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.search_k",
			Message: "search_k must be positive",
		})
	}

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

	if c.WebSearch.Enabled {
		if c.WebSearch.MaxResults < 1 {
			errors = append(errors, ValidationError{
				Field:   "websearch.max_results",
				Message: "max_results must be positive",
			})
		}
		if c.WebSearch.RateLimit <= 0 {
			errors = append(errors, ValidationError{
				Field:   "websearch.rate_limit",
				Message: "rate_limit must be positive",
			})
		}
	}

	switch c.LiveKit.Language {
	case "en", "hi", "kn":
	default:
		errors = append(errors, ValidationError{
			Field:   "livekit.language",
			Message: fmt.Sprintf("unsupported language: %s", c.LiveKit.Language),
		})
	}

	if c.Voice.MaxAnswerChars < 50 {
		errors = append(errors, ValidationError{
			Field:   "voice.max_answer_chars",
			Message: "max_answer_chars must be at least 50",
		})
	}

	return errors
}
