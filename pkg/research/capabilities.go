package research

import (
	"context"

	"github.com/mikeboe/research-agent/pkg/memory"
)

// The agent capabilities are narrow, stateless interfaces. Real
// implementations live in pkg/agents on top of the resilience-wrapped LLM
// and search capabilities; tests swap in fakes.

// Planner decomposes an enhanced prompt into a research plan.
type Planner interface {
	Plan(ctx context.Context, prompt string) (*Plan, error)
}

// Clarifier produces clarifying questions for an underspecified prompt. An
// empty question list means the prompt needs no clarification.
type Clarifier interface {
	Clarify(ctx context.Context, prompt string) (*Clarification, error)
}

// Searcher executes one query against the search capability.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// SynthesisRequest carries everything one synthesis pass sees.
type SynthesisRequest struct {
	Query          string
	Plan           *Plan
	Info           *GatheredInformation
	Memories       []memory.Chunk
	CorpusExcerpts []string
	Style          StyleLevel
}

// Synthesizer produces a cited answer, pushing tokens through onToken as
// they are generated. The returned string is the complete text.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest, onToken func(string) error) (string, error)
}

// ReflectionRequest carries the inputs of one reflection pass.
type ReflectionRequest struct {
	Query     string
	Synthesis string
	Info      *GatheredInformation
	Style     StyleLevel
}

// Reflector critiques a synthesis. The confidence threshold is its internal
// decision, surfaced only through RequiresMoreResearch.
type Reflector interface {
	Reflect(ctx context.Context, req ReflectionRequest) (*ReflectionResult, error)
}

// Completer is the plain-chat completion used by the zero-source fallback.
type Completer interface {
	Complete(ctx context.Context, history []Turn, prompt string, style StyleLevel, onToken func(string) error) (string, error)
}

// ConversationStore persists conversation turns.
type ConversationStore interface {
	SaveUserMessage(ctx context.Context, conversationID, content string) error
	SaveAssistantMessage(ctx context.Context, conversationID, content string) error
	History(ctx context.Context, conversationID string) ([]Turn, error)
}

// ClarificationStore holds the pending clarification questions between the
// two phases of a run.
type ClarificationStore interface {
	SavePending(ctx context.Context, conversationID string, questions []string) error
	TakePending(ctx context.Context, conversationID string) ([]string, error)
}

// MemoryStore is the slice of the semantic memory the control flow uses.
type MemoryStore interface {
	Store(ctx context.Context, text, source string, tags []string, conversationID string) (*memory.StoreResult, error)
	Search(ctx context.Context, query string, topK int, conversationID string) ([]memory.Chunk, error)
}
