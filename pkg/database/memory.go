package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mikeboe/research-agent/pkg/memory"
)

// MemoryVectorStore persists vector rows to the memory_vectors table.
type MemoryVectorStore struct {
	DB *PostgresDB
}

func NewMemoryVectorStore(db *PostgresDB) *MemoryVectorStore {
	return &MemoryVectorStore{DB: db}
}

func (s *MemoryVectorStore) SaveVector(ctx context.Context, id int64, embedding []float32) error {
	query := `
		INSERT INTO memory_vectors (vector_id, embedding, dimension)
		VALUES ($1, $2, $3)
	`
	_, err := s.DB.Pool.Exec(ctx, query, id, encodeEmbedding(embedding), len(embedding))
	if err != nil {
		return fmt.Errorf("failed to insert vector %d: %w", id, err)
	}
	return nil
}

func (s *MemoryVectorStore) LoadVectors(ctx context.Context) ([]memory.VectorRecord, error) {
	query := `SELECT vector_id, embedding, dimension, created_at FROM memory_vectors ORDER BY vector_id ASC`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	var records []memory.VectorRecord
	for rows.Next() {
		var rec memory.VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &blob, &rec.Dimension, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		rec.Embedding, err = decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector rows: %w", err)
	}
	return records, nil
}

// encodeEmbedding packs the embedding as little-endian float32 bytes.
func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return out, nil
}

// MemoryChunkStore persists memory chunks to the memory_chunks table.
type MemoryChunkStore struct {
	DB *PostgresDB
}

func NewMemoryChunkStore(db *PostgresDB) *MemoryChunkStore {
	return &MemoryChunkStore{DB: db}
}

func (s *MemoryChunkStore) SaveChunk(ctx context.Context, chunk memory.Chunk) error {
	query := `
		INSERT INTO memory_chunks (id, text, source, tags, vector_id, conversation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	_, err := s.DB.Pool.Exec(ctx, query,
		chunk.ID, chunk.Text, chunk.Source, chunk.Tags, chunk.VectorID, chunk.ConversationID, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (s *MemoryChunkStore) ChunksByVectorIDs(ctx context.Context, vectorIDs []int64) ([]memory.Chunk, error) {
	query := `
		SELECT id, text, source, tags, vector_id, COALESCE(conversation_id, ''), created_at
		FROM memory_chunks
		WHERE vector_id = ANY($1)
	`
	rows, err := s.DB.Pool.Query(ctx, query, vectorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []memory.Chunk
	for rows.Next() {
		var c memory.Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.Tags, &c.VectorID, &c.ConversationID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}
	return chunks, nil
}
