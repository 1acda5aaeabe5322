package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mikeboe/research-agent/pkg/resilience"
)

// Request is one research invocation. ClarificationAnswers is empty on the
// first call for a prompt; when the run was suspended for clarification the
// caller resubmits with the answers filled in.
type Request struct {
	Prompt               string
	ConversationID       string
	Style                StyleLevel
	ClarificationAnswers []string
}

// Coordinator owns the outer run flow: clarify, plan, initial search, then
// hand off to the iterative manager. When no sources can be gathered it
// falls back to a plain completion instead of fabricating a cited answer.
type Coordinator struct {
	clarifier Clarifier
	planner   Planner
	searcher  Searcher
	completer Completer
	manager   *Manager

	convs          ConversationStore
	clarifications ClarificationStore
	corpusFactory  CorpusFactory

	resultsPerQuery int
	log             *slog.Logger
}

type CoordinatorConfig struct {
	ResultsPerQuery int
}

func NewCoordinator(
	clarifier Clarifier,
	planner Planner,
	searcher Searcher,
	completer Completer,
	manager *Manager,
	convs ConversationStore,
	clarifications ClarificationStore,
	corpusFactory CorpusFactory,
	cfg CoordinatorConfig,
	log *slog.Logger,
) *Coordinator {
	if cfg.ResultsPerQuery < 1 {
		cfg.ResultsPerQuery = 5
	}
	return &Coordinator{
		clarifier:       clarifier,
		planner:         planner,
		searcher:        searcher,
		completer:       completer,
		manager:         manager,
		convs:           convs,
		clarifications:  clarifications,
		corpusFactory:   corpusFactory,
		resultsPerQuery: cfg.ResultsPerQuery,
		log:             log,
	}
}

// Run drives one research request end to end and streams its progress.
func (c *Coordinator) Run(ctx context.Context, req Request) Stream {
	return func(yield func(Event, error) bool) {
		if strings.TrimSpace(req.Prompt) == "" {
			yield(Event{}, errors.New("empty research prompt"))
			return
		}

		if c.convs != nil && req.ConversationID != "" {
			if err := c.convs.SaveUserMessage(ctx, req.ConversationID, req.Prompt); err != nil {
				c.log.Warn("failed to persist user message", "error", err)
			}
		}

		prompt := req.Prompt
		if len(req.ClarificationAnswers) == 0 {
			done, ok := c.maybeClarify(ctx, req, yield)
			if done || !ok {
				return
			}
		} else {
			prompt = c.enhancedPrompt(ctx, req)
		}

		if !yield(progressEvent("planning", "decomposing the research goal"), nil) {
			return
		}
		plan, err := c.planner.Plan(ctx, prompt)
		if err != nil {
			yield(Event{}, fmt.Errorf("planning failed: %w", err))
			return
		}
		if !yield(Event{Type: EventPlan, Payload: plan}, nil) {
			return
		}

		corpus := c.newCorpus(ctx)

		info := NewGatheredInformation()
		subtasks := make([]Subtask, len(plan.Subtasks))
		copy(subtasks, plan.Subtasks)
		sort.SliceStable(subtasks, func(i, j int) bool { return subtasks[i].Priority < subtasks[j].Priority })

		if !yield(progressEvent("searching", "gathering initial sources"), nil) {
			return
		}
		for i, task := range subtasks {
			query := task.SearchQuery
			if strings.TrimSpace(query) == "" {
				query = task.Description
			}
			if !yield(Event{Type: EventSearchQuery, Payload: SearchQueryPayload{
				Query:      query,
				TaskIndex:  i,
				TotalTasks: len(subtasks),
			}}, nil) {
				return
			}
			results, err := c.searcher.Search(ctx, query, c.resultsPerQuery)
			if err != nil {
				if errors.Is(err, resilience.ErrUnavailable) {
					c.log.Warn("search unavailable, skipping subtask", "query", query)
					continue
				}
				c.log.Warn("search failed, skipping subtask", "query", query, "error", err)
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

		if len(info.Results) == 0 {
			c.fallback(ctx, req, prompt, yield)
			return
		}

		for ev, err := range c.manager.Run(ctx, prompt, plan, info, corpus, req.ConversationID, req.Style) {
			if !yield(ev, err) {
				return
			}
		}
	}
}

// maybeClarify asks the clarifier whether the prompt needs clarification and
// suspends the run when it does. It returns done=true when the stream ended
// here and ok=false when yield asked us to stop.
func (c *Coordinator) maybeClarify(ctx context.Context, req Request, yield func(Event, error) bool) (done, ok bool) {
	if c.clarifier == nil {
		return false, true
	}
	clar, err := c.clarifier.Clarify(ctx, req.Prompt)
	if err != nil {
		c.log.Warn("clarification failed, proceeding without it", "error", err)
		return false, true
	}
	if clar == nil || len(clar.Questions) == 0 {
		return false, true
	}
	if c.clarifications != nil && req.ConversationID != "" {
		if err := c.clarifications.SavePending(ctx, req.ConversationID, clar.Questions); err != nil {
			c.log.Warn("failed to persist pending clarification, proceeding without it", "error", err)
			return false, true
		}
	}
	if !yield(Event{Type: EventClarification, Payload: clar}, nil) {
		return true, false
	}
	yield(Event{Type: EventDone, Payload: ""}, nil)
	return true, true
}

// enhancedPrompt folds the stored questions and the caller's answers back
// into the original prompt. Unanswered or orphaned answers are ignored.
func (c *Coordinator) enhancedPrompt(ctx context.Context, req Request) string {
	var questions []string
	if c.clarifications != nil && req.ConversationID != "" {
		q, err := c.clarifications.TakePending(ctx, req.ConversationID)
		if err != nil {
			c.log.Warn("failed to load pending clarification", "error", err)
		}
		questions = q
	}
	if len(questions) == 0 {
		return req.Prompt
	}

	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nAdditional context from clarification:\n")
	for i, q := range questions {
		if i >= len(req.ClarificationAnswers) {
			break
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, req.ClarificationAnswers[i])
	}
	return b.String()
}

func (c *Coordinator) newCorpus(ctx context.Context) *SourceCorpus {
	if c.corpusFactory == nil {
		return nil
	}
	corpus, err := c.corpusFactory(ctx)
	if err != nil {
		c.log.Warn("source corpus unavailable for this run", "error", err)
		return nil
	}
	return corpus
}

// fallback answers from the model's own knowledge and conversation history
// when no sources could be gathered.
func (c *Coordinator) fallback(ctx context.Context, req Request, prompt string, yield func(Event, error) bool) {
	if !yield(progressEvent("fallback", "no sources found, answering from general knowledge"), nil) {
		return
	}
	if c.completer == nil {
		yield(Event{}, errors.New("no sources found and no fallback completer configured"))
		return
	}

	var history []Turn
	if c.convs != nil && req.ConversationID != "" {
		h, err := c.convs.History(ctx, req.ConversationID)
		if err != nil {
			c.log.Warn("failed to load conversation history", "error", err)
		}
		history = h
	}

	stopped := false
	text, err := c.completer.Complete(ctx, history, prompt, req.Style, func(token string) error {
		if !yield(Event{Type: EventContent, Payload: token}, nil) {
			stopped = true
			return errors.New("stream closed")
		}
		return nil
	})
	if stopped {
		return
	}
	if err != nil {
		yield(Event{}, fmt.Errorf("fallback completion failed: %w", err))
		return
	}

	if c.convs != nil && req.ConversationID != "" && ctx.Err() == nil {
		if err := c.convs.SaveAssistantMessage(ctx, req.ConversationID, text); err != nil {
			c.log.Warn("failed to persist assistant message", "error", err)
		}
	}
	yield(Event{Type: EventDone, Payload: text}, nil)
}
