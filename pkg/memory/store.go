package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-agent/pkg/resilience"
	"github.com/mikeboe/research-agent/pkg/splitter"
)

// Store persists arbitrary text as searchable memory and retrieves the most
// relevant memories for a query.
type Store struct {
	chunker  *splitter.Chunker
	index    *Index
	embedder Embedder
	chunks   ChunkStore
	log      *slog.Logger
}

// NewStore wires the chunker, index, embedding capability and chunk storage
// into a memory store.
func NewStore(chunker *splitter.Chunker, index *Index, embedder Embedder, chunks ChunkStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		chunker:  chunker,
		index:    index,
		embedder: embedder,
		chunks:   chunks,
		log:      logger,
	}
}

// Index exposes the underlying vector index.
func (s *Store) Index() *Index {
	return s.index
}

// Store chunks the text and embeds, indexes, and persists each chunk
// independently. One failing chunk does not abort the rest; the result
// reports partial success and the caller decides severity.
func (s *Store) Store(ctx context.Context, text, source string, tags []string, conversationID string) (*StoreResult, error) {
	parts := s.chunker.ChunkText(text)

	result := &StoreResult{
		PrimaryID:   uuid.New().String(),
		TotalChunks: len(parts),
	}
	if len(parts) == 0 {
		return result, nil
	}

	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			result.FailedChunks = result.TotalChunks - result.SuccessfulChunks
			return result, err
		}

		chunkID := result.PrimaryID
		chunkSource := source
		if len(parts) > 1 {
			chunkID = fmt.Sprintf("%s-chunk%d", result.PrimaryID, i)
			chunkSource = fmt.Sprintf("%s#chunk%d", source, i)
		}

		if err := s.storeChunk(ctx, chunkID, part, chunkSource, tags, conversationID); err != nil {
			s.log.Error("failed to store memory chunk", "chunk_id", chunkID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %d: %v", i, err))
			continue
		}
		result.SuccessfulChunks++
	}

	result.FailedChunks = result.TotalChunks - result.SuccessfulChunks
	return result, nil
}

func (s *Store) storeChunk(ctx context.Context, id, text, source string, tags []string, conversationID string) error {
	embedding, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	vectorID, err := s.index.Add(ctx, embedding)
	if err != nil {
		return fmt.Errorf("index add failed: %w", err)
	}

	chunk := Chunk{
		ID:             id,
		Text:           text,
		Source:         source,
		Tags:           tags,
		VectorID:       vectorID,
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.chunks.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("chunk storage failed: %w", err)
	}
	return nil
}

// Search embeds the query, runs the index search, and hydrates matches into
// stored chunks sorted by descending relevance. An empty index short-circuits
// without an embedding call. A conversation scope returns that conversation's
// memories plus unscoped ones; the index is over-fetched so the scope filter
// does not starve the result. Orphaned vector ids are silently dropped.
func (s *Store) Search(ctx context.Context, query string, topK int, conversationID string) ([]Chunk, error) {
	if s.index.Count() == 0 || topK <= 0 {
		return nil, nil
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		if errors.Is(err, resilience.ErrUnavailable) {
			s.log.Warn("embedding capability unavailable, returning no memories")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := topK
	if conversationID != "" {
		fetch = topK * 3
	}
	matches, err := s.index.Search(ctx, embedding, fetch)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	vectorIDs := make([]int64, len(matches))
	for i, m := range matches {
		vectorIDs[i] = m.ID
	}
	stored, err := s.chunks.ChunksByVectorIDs(ctx, vectorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate chunks: %w", err)
	}

	byVector := make(map[int64]Chunk, len(stored))
	for _, c := range stored {
		byVector[c.VectorID] = c
	}

	out := make([]Chunk, 0, topK)
	for _, m := range matches {
		c, ok := byVector[m.ID]
		if !ok {
			continue
		}
		if conversationID != "" && c.ConversationID != "" && c.ConversationID != conversationID {
			continue
		}
		c.RelevanceScore = m.Similarity
		out = append(out, c)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
