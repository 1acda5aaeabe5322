package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-agent/pkg/research"
)

const reflectorSystemPrompt = `You are a research critic. Given a research
question, the synthesized answer, and the sources gathered so far, score your
confidence in the answer between 0 and 1, name the gaps, and suggest up to
three additional search queries that would close them. Set
requiresMoreResearch to true only when more searching would materially
improve the answer.`

func reflectionSchema() string {
	return `Return the JSON object directly without any formatting or additional text. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "confidenceScore": {"type": "number"},
    "reasoning": {"type": "string"},
    "identifiedGaps": {"type": "array", "items": {"type": "string"}},
    "suggestedAdditionalSearches": {"type": "array", "items": {"type": "string"}},
    "requiresMoreResearch": {"type": "boolean"}
  },
  "required": ["confidenceScore", "requiresMoreResearch"]
}`
}

// Reflector critiques syntheses. Transport failures propagate so the loop can
// terminate gracefully with its last synthesis; a merely malformed response
// degrades to a neutral "stop here" verdict.
type Reflector struct {
	llm                 *ResilientLLM
	confidenceThreshold float64
	log                 *slog.Logger
}

func NewReflector(llm *ResilientLLM, confidenceThreshold float64, logger *slog.Logger) *Reflector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reflector{llm: llm, confidenceThreshold: confidenceThreshold, log: logger}
}

func (r *Reflector) Reflect(ctx context.Context, req research.ReflectionRequest) (*research.ReflectionResult, error) {
	var sources strings.Builder
	for _, res := range req.Info.Results {
		fmt.Fprintf(&sources, "- %s (%s)\n", res.Title, res.URL)
	}

	input := fmt.Sprintf(`Research question: %s

Synthesized answer:
%s

Sources gathered (%d):
%s`, req.Query, req.Synthesis, req.Info.TotalSourcesFound, sources.String())

	content, err := r.llm.Generate(ctx, GenerateInput{
		System:   reflectorSystemPrompt + "\n\n# Response Format:\n\n" + reflectionSchema(),
		Prompt:   input,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("reflection generation failed: %w", err)
	}

	var result research.ReflectionResult
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &result); err != nil {
		r.log.Warn("unusable reflection response, stopping iteration", "error", err)
		return &research.ReflectionResult{ConfidenceScore: 0.5, RequiresMoreResearch: false}, nil
	}

	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	if result.ConfidenceScore > 1 {
		result.ConfidenceScore = 1
	}
	// A confident answer ends the loop no matter what the model claims.
	if result.ConfidenceScore >= r.confidenceThreshold {
		result.RequiresMoreResearch = false
	}
	return &result, nil
}
