package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-agent/pkg/research"
)

const clarifierSystemPrompt = `You decide whether a research request is specific
enough to research well. If it is, return an empty questions list. If it is
ambiguous, return up to three short clarifying questions and a one-sentence
rationale. Ask only when an answer would genuinely change the research.`

func clarificationSchema() string {
	return `Return the JSON object directly without any formatting or additional text. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "questions": {"type": "array", "items": {"type": "string"}},
    "rationale": {"type": "string"}
  },
  "required": ["questions"]
}`
}

// Clarifier screens prompts for ambiguity. Any failure degrades to "no
// questions" so a broken clarifier never blocks research.
type Clarifier struct {
	llm *ResilientLLM
	log *slog.Logger
}

func NewClarifier(llm *ResilientLLM, logger *slog.Logger) *Clarifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clarifier{llm: llm, log: logger}
}

func (c *Clarifier) Clarify(ctx context.Context, prompt string) (*research.Clarification, error) {
	content, err := c.llm.Generate(ctx, GenerateInput{
		System:   clarifierSystemPrompt + "\n\n# Response Format:\n\n" + clarificationSchema(),
		Prompt:   fmt.Sprintf("Research request: %s", prompt),
		JSONMode: true,
	})
	if err != nil {
		c.log.Warn("clarification generation failed, proceeding without questions", "error", err)
		return &research.Clarification{}, nil
	}

	var clar research.Clarification
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &clar); err != nil {
		c.log.Warn("unusable clarification response, proceeding without questions", "error", err)
		return &research.Clarification{}, nil
	}
	return &clar, nil
}
