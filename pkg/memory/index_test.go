package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeVectorStore is an in-memory VectorStore.
type fakeVectorStore struct {
	mu      sync.Mutex
	records []VectorRecord
	saveErr error
	saves   int
}

func (f *fakeVectorStore) SaveVector(ctx context.Context, id int64, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = append(f.records, VectorRecord{
		ID:        id,
		Embedding: embedding,
		Dimension: len(embedding),
		CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeVectorStore) LoadVectors(ctx context.Context) ([]VectorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VectorRecord(nil), f.records...), nil
}

func TestIndexAddEnforcesDimension(t *testing.T) {
	ix := NewIndex(3, &fakeVectorStore{}, nil)

	if _, err := ix.Add(context.Background(), []float32{1, 2}); !errors.Is(err, ErrDimension) {
		t.Errorf("Add() with short vector error = %v, want ErrDimension", err)
	}
	if _, err := ix.Add(context.Background(), []float32{1, 2, 3, 4}); !errors.Is(err, ErrDimension) {
		t.Errorf("Add() with long vector error = %v, want ErrDimension", err)
	}
	if _, err := ix.Add(context.Background(), []float32{1, 2, 3}); err != nil {
		t.Errorf("Add() with matching vector error = %v", err)
	}
}

func TestIndexAddPersistsBeforeReturning(t *testing.T) {
	store := &fakeVectorStore{}
	ix := NewIndex(2, store, nil)

	id, err := ix.Add(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(store.records) != 1 || store.records[0].ID != id {
		t.Errorf("vector %d not durably written", id)
	}
}

func TestIndexAddFailedPersistBurnsID(t *testing.T) {
	store := &fakeVectorStore{saveErr: errors.New("disk full")}
	ix := NewIndex(2, store, nil)

	if _, err := ix.Add(context.Background(), []float32{1, 0}); err == nil {
		t.Fatal("Add() succeeded despite persist failure")
	}
	if ix.Count() != 0 {
		t.Errorf("Count() = %d after failed persist, want 0", ix.Count())
	}

	store.saveErr = nil
	id, err := ix.Add(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id != 2 {
		t.Errorf("id after burned allocation = %d, want 2", id)
	}
}

func TestIndexSearchOrderingAndCap(t *testing.T) {
	ix := NewIndex(2, &fakeVectorStore{}, nil)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0, 1},
		{-1, 0},
	}
	for _, v := range vectors {
		if _, err := ix.Add(ctx, v); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	matches, err := ix.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("Search() returned %d matches, want min(10, Count()) = 4", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("matches not sorted by non-increasing similarity at %d", i)
		}
	}
	if matches[0].ID != 1 {
		t.Errorf("best match id = %d, want 1", matches[0].ID)
	}

	matches, err = ix.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Search() with topK=2 returned %d matches", len(matches))
	}
}

func TestIndexSearchDimensionMismatch(t *testing.T) {
	ix := NewIndex(2, &fakeVectorStore{}, nil)
	if _, err := ix.Search(context.Background(), []float32{1, 2, 3}, 5); !errors.Is(err, ErrDimension) {
		t.Errorf("Search() error = %v, want ErrDimension", err)
	}
}

func TestIndexLoadFromStore(t *testing.T) {
	store := &fakeVectorStore{records: []VectorRecord{
		{ID: 3, Embedding: []float32{1, 0}, Dimension: 2},
		{ID: 7, Embedding: []float32{0, 1}, Dimension: 2},
		{ID: 9, Embedding: []float32{1, 2, 3}, Dimension: 3}, // wrong dimension, skipped
	}}
	ix := NewIndex(2, store, nil)

	if err := ix.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}
	if got := ix.Count(); got != 2 {
		t.Errorf("Count() = %d after load, want 2", got)
	}

	// Next id resumes past the highest loaded id even though id 9 was
	// skipped for its dimension.
	id, err := ix.Add(context.Background(), []float32{0.5, 0.5})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id != 10 {
		t.Errorf("id after reload = %d, want 10", id)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}
