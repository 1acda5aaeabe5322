package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// ErrDimension is returned when an embedding does not match the index's
// configured dimension. Mismatches are a contract violation, never truncated.
var ErrDimension = errors.New("embedding dimension mismatch")

// Match is one search hit, ordered by descending similarity.
type Match struct {
	ID         int64
	Similarity float64
}

// Index is the in-process similarity index over fixed-dimension embeddings.
// The map is guarded by a single mutex; similarity scoring runs outside the
// critical section so a large scan never blocks concurrent adds.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors map[int64][]float32
	nextID  int64

	store VectorStore
	log   *slog.Logger
}

// NewIndex creates an empty index for embeddings of the given dimension,
// write-through persisted to store.
func NewIndex(dimension int, store VectorStore, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dim:     dimension,
		vectors: make(map[int64][]float32),
		nextID:  1,
		store:   store,
		log:     logger,
	}
}

// Add durably persists the embedding and inserts it into the index,
// returning its id. Ids are monotonic and never reused, including ids burned
// by a failed durable write.
func (ix *Index) Add(ctx context.Context, embedding []float32) (int64, error) {
	if len(embedding) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index dimension is %d", ErrDimension, len(embedding), ix.dim)
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	ix.mu.Lock()
	id := ix.nextID
	ix.nextID++
	ix.mu.Unlock()

	if err := ix.store.SaveVector(ctx, id, vec); err != nil {
		return 0, fmt.Errorf("failed to persist vector %d: %w", id, err)
	}

	ix.mu.Lock()
	ix.vectors[id] = vec
	ix.mu.Unlock()

	return id, nil
}

// Search scores every stored vector against the query and returns the top-K
// by descending cosine similarity, at most min(topK, Count()) results.
func (ix *Index) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", ErrDimension, len(query), ix.dim)
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Snapshot under the read lock; stored vectors are never mutated after
	// insert, so scoring can safely run on the shared slices off the lock.
	ix.mu.RLock()
	snapshot := make([]Match, 0, len(ix.vectors))
	vecs := make([][]float32, 0, len(ix.vectors))
	for id, vec := range ix.vectors {
		snapshot = append(snapshot, Match{ID: id})
		vecs = append(vecs, vec)
	}
	ix.mu.RUnlock()

	for i := range snapshot {
		snapshot[i].Similarity = Cosine(query, vecs[i])
	}

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].Similarity != snapshot[j].Similarity {
			return snapshot[i].Similarity > snapshot[j].Similarity
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	if len(snapshot) > topK {
		snapshot = snapshot[:topK]
	}
	return snapshot, nil
}

// Count returns the number of indexed vectors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// LoadFromStore rebuilds the index from durable storage. Rows whose stored
// dimension disagrees with the configured one are skipped and logged. The
// next id resumes past the highest loaded id.
func (ix *Index) LoadFromStore(ctx context.Context) error {
	records, err := ix.store.LoadVectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.vectors = make(map[int64][]float32, len(records))
	ix.nextID = 1
	skipped := 0
	for _, rec := range records {
		if rec.Dimension != ix.dim || len(rec.Embedding) != ix.dim {
			skipped++
			ix.log.Warn("skipping vector with mismatched dimension",
				"vector_id", rec.ID, "dimension", rec.Dimension, "expected", ix.dim)
			continue
		}
		ix.vectors[rec.ID] = rec.Embedding
		if rec.ID >= ix.nextID {
			ix.nextID = rec.ID + 1
		}
	}

	ix.log.Info("vector index loaded", "count", len(ix.vectors), "skipped", skipped)
	return nil
}

// Cosine computes the cosine similarity of a and b. A zero-magnitude vector
// yields 0, not an error.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
