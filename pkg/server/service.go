package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-agent/pkg/config"
	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/research"
)

// Service records runs in research_runs and drives the coordinator for them.
type Service struct {
	DB          *database.PostgresDB
	Coordinator *research.Coordinator
	Cfg         *config.Config
}

func NewService(db *database.PostgresDB, coordinator *research.Coordinator, cfg *config.Config) *Service {
	return &Service{DB: db, Coordinator: coordinator, Cfg: cfg}
}

type Run struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Prompt         string          `json:"prompt"`
	Status         string          `json:"status"`
	Answer         *string         `json:"answer,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Config         json.RawMessage `json:"config"`
}

type CreateRunRequest struct {
	Prompt               string   `json:"prompt"`
	ConversationID       string   `json:"conversation_id,omitempty"`
	Style                int      `json:"style,omitempty"`
	ClarificationAnswers []string `json:"clarification_answers,omitempty"`
}

// CreateRun records the run and returns its row. The caller decides whether
// to stream it inline or let it run in the background.
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (*Run, error) {
	configJSON, _ := json.Marshal(map[string]interface{}{
		"max_iterations":       s.Cfg.MaxIterations,
		"confidence_threshold": s.Cfg.ConfidenceThreshold,
		"style":                req.Style,
	})

	var convID interface{}
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("invalid conversation id: %w", err)
		}
		convID = id
	}

	runID := uuid.New()
	query := `
		INSERT INTO research_runs (id, conversation_id, prompt, status, config)
		VALUES ($1, $2, $3, 'running', $4)
		RETURNING id, conversation_id, prompt, status, created_at, updated_at
	`

	run := &Run{}
	err := s.DB.Pool.QueryRow(ctx, query, runID, convID, req.Prompt, configJSON).Scan(
		&run.ID, &run.ConversationID, &run.Prompt, &run.Status, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// StreamRun executes the run and forwards its events, updating the run row
// when the stream ends. Run logs go to research_logs via the DB handler.
func (s *Service) StreamRun(ctx context.Context, run *Run, req CreateRunRequest) research.Stream {
	return func(yield func(research.Event, error) bool) {
		logger := slog.New(NewDBLogHandler(s.DB, run.ID))
		logger.Info("run started", "prompt", req.Prompt)

		style := research.StyleLevel(req.Style)
		if style < research.StyleConcise || style > research.StyleDetailed {
			style = research.StyleLevel(s.Cfg.StyleLevel)
		}

		answer := ""
		failed := false
		for ev, err := range s.Coordinator.Run(ctx, research.Request{
			Prompt:               req.Prompt,
			ConversationID:       req.ConversationID,
			Style:                style,
			ClarificationAnswers: req.ClarificationAnswers,
		}) {
			if err != nil {
				logger.Error("run failed", "error", err)
				failed = true
				s.finishRun(run.ID, "failed", "")
				yield(ev, err)
				return
			}
			if ev.Type == research.EventDone {
				if text, ok := ev.Payload.(string); ok {
					answer = text
				}
			}
			if !yield(ev, nil) {
				logger.Warn("client disconnected")
				s.finishRun(run.ID, "cancelled", "")
				return
			}
		}
		if !failed {
			logger.Info("run completed", "answer_length", len(answer))
			s.finishRun(run.ID, "completed", answer)
		}
	}
}

func (s *Service) finishRun(runID uuid.UUID, status, answer string) {
	// Background context so bookkeeping survives request cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if answer != "" {
		_, err = s.DB.Pool.Exec(ctx,
			"UPDATE research_runs SET status = $2, answer = $3, updated_at = NOW() WHERE id = $1",
			runID, status, answer)
	} else {
		_, err = s.DB.Pool.Exec(ctx,
			"UPDATE research_runs SET status = $2, updated_at = NOW() WHERE id = $1",
			runID, status)
	}
	if err != nil {
		slog.Error("failed to update run status", "run_id", runID, "error", err)
	}
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, conversation_id, prompt, status, answer, created_at, updated_at, config
		FROM research_runs
		WHERE id = $1
	`
	run := &Run{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.ConversationID, &run.Prompt, &run.Status, &run.Answer, &run.CreatedAt, &run.UpdatedAt, &run.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	query := `
		SELECT id, conversation_id, prompt, status, answer, created_at, updated_at, config
		FROM research_runs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ConversationID, &run.Prompt, &run.Status, &run.Answer, &run.CreatedAt, &run.UpdatedAt, &run.Config); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetRunLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}
