package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-agent/pkg/research"
)

const completerSystemPrompt = `You are a knowledgeable research assistant.
No external sources could be gathered for this request, so answer from your
own knowledge and the conversation so far. Be explicit about uncertainty and
do not fabricate citations.`

// Completer is the plain-chat fallback used when a run gathers no sources.
type Completer struct {
	llm *ResilientLLM
	log *slog.Logger
}

func NewCompleter(llm *ResilientLLM, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{llm: llm, log: logger}
}

func (c *Completer) Complete(ctx context.Context, history []research.Turn, prompt string, style research.StyleLevel, onToken func(string) error) (string, error) {
	var msgs []llms.MessageContent
	for _, t := range history {
		role := llms.ChatMessageTypeHuman
		if t.Role == "assistant" || t.Role == "model" {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}

	text, err := c.llm.Generate(ctx, GenerateInput{
		System:     completerSystemPrompt + "\n\n" + styleInstruction(style),
		History:    msgs,
		Prompt:     prompt,
		StreamFunc: onToken,
	})
	if err != nil {
		return "", fmt.Errorf("fallback completion failed: %w", err)
	}
	return text, nil
}
