package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-agent/pkg/research"
)

const synthesizerSystemPrompt = `You are a research writer. Answer the research
question using only the provided sources, excerpts, and remembered context.
Cite sources inline by title. Say so explicitly when the sources do not cover
part of the question.`

func styleInstruction(style research.StyleLevel) string {
	switch style {
	case research.StyleConcise:
		return "Keep the answer concise, a few paragraphs at most."
	case research.StyleDetailed:
		return "Write a detailed, well-structured answer with sections."
	default:
		return "Write a balanced answer, thorough but not exhaustive."
	}
}

// Synthesizer produces the cited answer text, streaming tokens as they are
// generated.
type Synthesizer struct {
	llm *ResilientLLM
	log *slog.Logger
}

func NewSynthesizer(llm *ResilientLLM, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{llm: llm, log: logger}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req research.SynthesisRequest, onToken func(string) error) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", req.Query)
	if req.Plan != nil && req.Plan.Goal != "" {
		fmt.Fprintf(&b, "Research goal: %s\n\n", req.Plan.Goal)
	}

	if len(req.Memories) > 0 {
		b.WriteString("Remembered context from earlier research:\n")
		for _, m := range req.Memories {
			fmt.Fprintf(&b, "- %s\n", m.Text)
		}
		b.WriteString("\n")
	}

	if len(req.CorpusExcerpts) > 0 {
		b.WriteString("Relevant excerpts from gathered sources:\n")
		for i, e := range req.CorpusExcerpts {
			fmt.Fprintf(&b, "[excerpt %d]\n%s\n\n", i+1, e)
		}
	}

	b.WriteString("Sources:\n")
	for _, r := range req.Info.Results {
		fmt.Fprintf(&b, "# Title: %s\nURL: %s\nSummary: %s\n\n", r.Title, r.URL, r.Snippet)
	}

	text, err := s.llm.Generate(ctx, GenerateInput{
		System:     synthesizerSystemPrompt + "\n\n" + styleInstruction(req.Style),
		Prompt:     b.String(),
		StreamFunc: onToken,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis generation failed: %w", err)
	}
	return text, nil
}
