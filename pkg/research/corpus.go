package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mikeboe/research-agent/pkg/memory"
	"github.com/mikeboe/research-agent/pkg/splitter"
	"github.com/mikeboe/research-agent/pkg/vectorstore"
)

// SourceCorpus is the per-run retrieval index over gathered source content.
// Unlike the durable semantic memory it lives in a pgvector table scoped to
// one run and is queried only while that run synthesizes.
type SourceCorpus struct {
	store    *vectorstore.PGVectorStore
	embedder memory.Embedder
	chunker  *splitter.Chunker
	log      *slog.Logger
}

// CorpusFactory creates the corpus for a run. The coordinator calls it once
// per run with a fresh collection name; a nil factory disables the corpus.
type CorpusFactory func(ctx context.Context) (*SourceCorpus, error)

func NewSourceCorpus(store *vectorstore.PGVectorStore, embedder memory.Embedder, chunker *splitter.Chunker, log *slog.Logger) *SourceCorpus {
	return &SourceCorpus{store: store, embedder: embedder, chunker: chunker, log: log}
}

// RunCollectionName returns a table name unique to one run.
func RunCollectionName() string {
	return "run_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IndexResults chunks and embeds the content of each result into the corpus.
// Failures are logged and skipped so one bad source never aborts a run.
func (c *SourceCorpus) IndexResults(ctx context.Context, results []SearchResult) int {
	indexed := 0
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		chunks := c.chunker.ChunkText(r.Content)
		docs := make([]vectorstore.Document, 0, len(chunks))
		for i, text := range chunks {
			vec, err := c.embedder.EmbedText(ctx, text)
			if err != nil {
				c.log.Warn("corpus embed failed, skipping chunk", "url", r.URL, "chunk", i, "error", err)
				continue
			}
			docs = append(docs, vectorstore.Document{
				ID:        fmt.Sprintf("%s-%d", uuid.New().String(), i),
				Content:   text,
				Embedding: vec,
				Metadata:  map[string]any{"title": r.Title, "url": r.URL},
			})
		}
		if len(docs) == 0 {
			continue
		}
		if err := c.store.AddDocuments(ctx, docs); err != nil {
			c.log.Warn("corpus insert failed, skipping source", "url", r.URL, "error", err)
			continue
		}
		indexed++
	}
	return indexed
}

// Retrieve returns the k most relevant excerpts for a query, empty on error.
func (c *SourceCorpus) Retrieve(ctx context.Context, query string, k int) []string {
	vec, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		c.log.Warn("corpus query embed failed", "error", err)
		return nil
	}
	results, err := c.store.SimilaritySearch(ctx, vec, k)
	if err != nil {
		c.log.Warn("corpus search failed", "error", err)
		return nil
	}
	excerpts := make([]string, 0, len(results))
	for _, r := range results {
		excerpts = append(excerpts, r.Document.Content)
	}
	return excerpts
}
