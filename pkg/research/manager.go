package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-agent/pkg/memory"
	"github.com/mikeboe/research-agent/pkg/resilience"
)

// Manager runs the iterative research loop: synthesize, reflect, and when
// reflection asks for more evidence, search again, up to a fixed iteration
// cap.
type Manager struct {
	synthesizer Synthesizer
	reflector   Reflector
	searcher    Searcher
	memories    MemoryStore
	convs       ConversationStore

	maxIterations   int
	resultsPerQuery int
	topKMemories    int
	log             *slog.Logger
}

type ManagerConfig struct {
	MaxIterations   int
	ResultsPerQuery int
	TopKMemories    int
}

func NewManager(synth Synthesizer, refl Reflector, search Searcher, mem MemoryStore, convs ConversationStore, cfg ManagerConfig, log *slog.Logger) *Manager {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.ResultsPerQuery < 1 {
		cfg.ResultsPerQuery = 5
	}
	if cfg.TopKMemories < 0 {
		cfg.TopKMemories = 0
	}
	return &Manager{
		synthesizer:     synth,
		reflector:       refl,
		searcher:        search,
		memories:        mem,
		convs:           convs,
		maxIterations:   cfg.MaxIterations,
		resultsPerQuery: cfg.ResultsPerQuery,
		topKMemories:    cfg.TopKMemories,
		log:             log,
	}
}

// Run executes the loop over the already-gathered information and streams
// progress. Relevant memories are fetched once at the start; the final
// synthesis is persisted as an assistant turn and stored back into memory
// before the done event.
func (m *Manager) Run(ctx context.Context, query string, plan *Plan, info *GatheredInformation, corpus *SourceCorpus, conversationID string, style StyleLevel) Stream {
	return func(yield func(Event, error) bool) {
		if !yield(progressEvent("synthesis", "synthesizing answer from gathered sources"), nil) {
			return
		}

		var recalled []memory.Chunk
		if m.memories != nil && m.topKMemories > 0 {
			chunks, err := m.memories.Search(ctx, query, m.topKMemories, conversationID)
			if err != nil {
				m.log.Warn("memory recall failed", "error", err)
			}
			recalled = chunks
		}

		lastSynthesis := ""
		var lastReflection *ReflectionResult
		iterations := 0

		for iteration := 0; iteration < m.maxIterations; iteration++ {
			iterations = iteration + 1
			var excerpts []string
			if corpus != nil {
				excerpts = corpus.Retrieve(ctx, query, m.resultsPerQuery)
			}

			req := SynthesisRequest{
				Query:          query,
				Plan:           plan,
				Info:           info,
				Memories:       recalled,
				CorpusExcerpts: excerpts,
				Style:          style,
			}

			streamErr := error(nil)
			text, err := m.synthesizer.Synthesize(ctx, req, func(token string) error {
				if !yield(Event{Type: EventContent, Payload: token}, nil) {
					streamErr = errors.New("stream closed")
					return streamErr
				}
				return nil
			})
			if streamErr != nil {
				return
			}
			if err != nil {
				yield(Event{}, fmt.Errorf("synthesis failed: %w", err))
				return
			}
			lastSynthesis = text

			reflection, err := m.reflector.Reflect(ctx, ReflectionRequest{
				Query:     query,
				Synthesis: text,
				Info:      info,
				Style:     style,
			})
			if err != nil {
				m.log.Warn("reflection failed, keeping last synthesis", "iteration", iteration, "error", err)
				break
			}
			lastReflection = reflection

			if !reflection.RequiresMoreResearch || len(reflection.SuggestedAdditionalSearches) == 0 {
				break
			}
			if iteration == m.maxIterations-1 {
				break
			}

			if !yield(progressEvent("additional_research", "gathering additional sources"), nil) {
				return
			}
			for i, q := range reflection.SuggestedAdditionalSearches {
				if !yield(Event{Type: EventSearchQuery, Payload: SearchQueryPayload{
					Query:      q,
					TaskIndex:  i,
					TotalTasks: len(reflection.SuggestedAdditionalSearches),
				}}, nil) {
					return
				}
				results, err := m.searcher.Search(ctx, q, m.resultsPerQuery)
				if err != nil {
					if errors.Is(err, resilience.ErrUnavailable) {
						m.log.Warn("search unavailable, skipping query", "query", q)
						continue
					}
					m.log.Warn("search failed, skipping query", "query", q, "error", err)
					continue
				}
				added := info.Append(results)
				if corpus != nil {
					corpus.IndexResults(ctx, added)
				}
				for _, r := range added {
					if !yield(Event{Type: EventSource, Payload: SourcePayload{
						Title:   r.Title,
						URL:     r.URL,
						Snippet: r.Snippet,
					}}, nil) {
						return
					}
				}
			}
		}

		if lastSynthesis != "" && ctx.Err() == nil {
			if m.convs != nil && conversationID != "" {
				if err := m.convs.SaveAssistantMessage(ctx, conversationID, lastSynthesis); err != nil {
					m.log.Warn("failed to persist assistant message", "error", err)
				}
			}
			if m.memories != nil {
				stored, err := m.memories.Store(ctx, lastSynthesis, "synthesis", []string{"synthesis"}, conversationID)
				if err != nil {
					m.log.Warn("failed to store synthesis in memory", "error", err)
				} else if info != nil {
					info.StoredMemoryIDs = append(info.StoredMemoryIDs, stored.PrimaryID)
				}
			}
		}

		if lastReflection != nil {
			reasoning := lastReflection.Reasoning
			if len(lastReflection.IdentifiedGaps) > 0 {
				gaps := "Remaining gaps: " + strings.Join(lastReflection.IdentifiedGaps, "; ")
				if reasoning == "" {
					reasoning = gaps
				} else {
					reasoning = reasoning + " " + gaps
				}
			}
			if !yield(Event{Type: EventReflection, Payload: ReflectionPayload{
				ConfidenceScore: lastReflection.ConfidenceScore,
				Reasoning:       reasoning,
				IterationCount:  iterations,
			}}, nil) {
				return
			}
		}
		yield(Event{Type: EventDone, Payload: lastSynthesis}, nil)
	}
}
