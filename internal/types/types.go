package types

import (
	"context"

	"github.com/allionai/allion/internal/models"
)

// VectorStore indexes embedded document chunks for similarity search.
type VectorStore interface {
	Store(ctx context.Context, docs []models.ProcessedDocument) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.Document, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close()
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}

// Transcriber is a live speech-to-text session. Final transcripts arrive on
// Transcripts; UtteranceEnd signals a pause long enough to treat the buffered
// transcript as a complete user turn.
type Transcriber interface {
	Connect(ctx context.Context) error
	SendAudio(data []byte) error
	Transcripts() <-chan string
	UtteranceEnd() <-chan struct{}
	Close() error
}

// Speaker converts text into streamed audio chunks.
type Speaker interface {
	SendText(text string) error
	AudioChannel() <-chan []byte
	Cancel()
	Close()
}

// Responder answers a user query, typically via the assistant state machine.
type Responder interface {
	Process(ctx context.Context, query string) (*models.Answer, error)
}
