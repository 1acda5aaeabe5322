// Package memory implements the persistent semantic memory: an in-process
// cosine-similarity index backed by durable storage, fed by chunked text.
package memory

import (
	"context"
	"time"
)

// Chunk is one embedded piece of stored text. RelevanceScore is only
// populated on retrieval.
type Chunk struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Source         string    `json:"source"`
	Tags           []string  `json:"tags"`
	VectorID       int64     `json:"vector_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
}

// StoreResult reports the per-chunk outcome of storing one text. Partial
// failure is a structured result, never a hard error.
type StoreResult struct {
	PrimaryID        string   `json:"primary_id"`
	TotalChunks      int      `json:"total_chunks"`
	SuccessfulChunks int      `json:"successful_chunks"`
	FailedChunks     int      `json:"failed_chunks"`
	Errors           []string `json:"errors,omitempty"`
}

// Embedder is the embedding capability consumed by the memory layer.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorRecord is one durable vector row.
type VectorRecord struct {
	ID        int64
	Embedding []float32
	Dimension int
	CreatedAt time.Time
}

// VectorStore persists vector rows. SaveVector must complete before an Add
// returns so memory survives a restart.
type VectorStore interface {
	SaveVector(ctx context.Context, id int64, embedding []float32) error
	LoadVectors(ctx context.Context) ([]VectorRecord, error)
}

// ChunkStore persists memory chunks keyed by their derived id.
type ChunkStore interface {
	SaveChunk(ctx context.Context, chunk Chunk) error
	ChunksByVectorIDs(ctx context.Context, vectorIDs []int64) ([]Chunk, error)
}
