package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-agent/pkg/research"
)

const plannerSystemPrompt = `You are a research planner.
Decompose the research request into a goal, two to five prioritized subtasks
with one search query each, and the key concepts involved. Priority 1 is the
most urgent subtask.`

func planSchema() string {
	return `Return the JSON object directly without any formatting or additional text. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "goal": {"type": "string"},
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "searchQuery": {"type": "string"},
          "priority": {"type": "integer"}
        },
        "required": ["description", "searchQuery", "priority"]
      }
    },
    "keyConcepts": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["goal", "subtasks"]
}`
}

// Planner decomposes prompts into research plans. A malformed LLM response
// degrades to a single-subtask plan built from the raw prompt instead of
// failing the run.
type Planner struct {
	llm *ResilientLLM
	log *slog.Logger
}

func NewPlanner(llm *ResilientLLM, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: llm, log: logger}
}

func (p *Planner) Plan(ctx context.Context, prompt string) (*research.Plan, error) {
	content, err := p.llm.Generate(ctx, GenerateInput{
		System:   plannerSystemPrompt + "\n\n# Response Format:\n\n" + planSchema(),
		Prompt:   fmt.Sprintf("Research request: %s", prompt),
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	var plan research.Plan
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &plan); err != nil || len(plan.Subtasks) == 0 {
		p.log.Warn("unusable plan response, falling back to single subtask", "error", err)
		return fallbackPlan(prompt), nil
	}
	if plan.Goal == "" {
		plan.Goal = prompt
	}
	return &plan, nil
}

func fallbackPlan(prompt string) *research.Plan {
	return &research.Plan{
		Goal: prompt,
		Subtasks: []research.Subtask{
			{Description: prompt, SearchQuery: prompt, Priority: 1},
		},
	}
}
