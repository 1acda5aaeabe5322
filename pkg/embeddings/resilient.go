package embeddings

import (
	"context"
	"log/slog"

	"github.com/mikeboe/research-agent/pkg/resilience"
)

// Embedder is the raw embedding capability wrapped by ResilientEmbedder.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ResilientEmbedder runs an embedder under the shared resilience policy. The
// embedding API is called once per chunk during memory writes, so the rate
// limiter here is what spaces those calls out.
type ResilientEmbedder struct {
	inner  Embedder
	caller *resilience.Caller[string, []float32]
}

func NewResilientEmbedder(inner Embedder, cfg resilience.CallerConfig, logger *slog.Logger) *ResilientEmbedder {
	return &ResilientEmbedder{
		inner:  inner,
		caller: resilience.NewCaller[string, []float32]("embeddings", cfg, logger),
	}
}

// Breaker exposes the capability's circuit breaker for health reporting.
func (r *ResilientEmbedder) Breaker() *resilience.Breaker {
	return r.caller.Breaker()
}

func (r *ResilientEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return r.caller.Execute(ctx, func(ctx context.Context, text string) ([]float32, error) {
		vec, err := r.inner.EmbedText(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, resilience.Transient(err)
		}
		return vec, nil
	}, text)
}
