// Package agents implements the research capabilities on top of a
// resilience-wrapped LLM and the arXiv search API.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-agent/pkg/resilience"
)

// GenerateInput is one LLM generation request.
type GenerateInput struct {
	System   string
	History  []llms.MessageContent
	Prompt   string
	JSONMode bool
	// StreamFunc receives tokens as they arrive. Nil disables streaming.
	StreamFunc func(string) error
}

// ResilientLLM wraps a langchaingo model in the shared resilience policy.
// All agents of one process share a single instance per model, so they also
// share its circuit breaker.
type ResilientLLM struct {
	llm    llms.Model
	caller *resilience.Caller[GenerateInput, string]
	log    *slog.Logger
}

func NewResilientLLM(llm llms.Model, name string, cfg resilience.CallerConfig, logger *slog.Logger) *ResilientLLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientLLM{
		llm:    llm,
		caller: resilience.NewCaller[GenerateInput, string](name, cfg, logger),
		log:    logger,
	}
}

// Breaker exposes the shared circuit breaker for health reporting.
func (r *ResilientLLM) Breaker() *resilience.Breaker {
	return r.caller.Breaker()
}

// Generate runs one completion under the resilience policy. Once tokens have
// been streamed to the consumer the call is no longer retried, so a consumer
// never sees the same prefix twice.
func (r *ResilientLLM) Generate(ctx context.Context, input GenerateInput) (string, error) {
	return r.caller.Execute(ctx, r.generate, input)
}

func (r *ResilientLLM) generate(ctx context.Context, input GenerateInput) (string, error) {
	var prompts []llms.MessageContent
	if input.System != "" {
		prompts = append(prompts, llms.TextParts(llms.ChatMessageTypeSystem, input.System))
	}
	prompts = append(prompts, input.History...)
	prompts = append(prompts, llms.TextParts(llms.ChatMessageTypeHuman, input.Prompt))

	var opts []llms.CallOption
	if input.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	emitted := false
	if input.StreamFunc != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			emitted = true
			return input.StreamFunc(string(chunk))
		}))
	}

	resp, err := r.llm.GenerateContent(ctx, prompts, opts...)
	if err != nil {
		if emitted {
			// A retry would re-stream tokens the consumer already has, so
			// the error is deliberately not transient-classifiable.
			return "", fmt.Errorf("generation failed mid-stream: %v", err)
		}
		return "", resilience.Transient(err)
	}
	if len(resp.Choices) == 0 {
		return "", resilience.Transient(fmt.Errorf("llm returned no choices"))
	}
	return resp.Choices[0].Content, nil
}

// cleanJSONResponse strips markdown code fences some models wrap around JSON
// output even in JSON mode.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
