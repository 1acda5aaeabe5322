package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ClarificationStore holds pending clarification questions keyed by
// conversation id. Rows are one-shot: written when questions are generated,
// consumed (deleted) when the answers arrive.
type ClarificationStore struct {
	DB *PostgresDB
}

func NewClarificationStore(db *PostgresDB) *ClarificationStore {
	return &ClarificationStore{DB: db}
}

// SavePending upserts the pending questions for a conversation. A resubmitted
// prompt without answers replaces the previous set.
func (s *ClarificationStore) SavePending(ctx context.Context, conversationID string, questions []string) error {
	payload, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	query := `
		INSERT INTO pending_clarifications (conversation_id, questions)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET questions = $2, created_at = NOW()
	`
	if _, err := s.DB.Pool.Exec(ctx, query, conversationID, payload); err != nil {
		return fmt.Errorf("failed to save pending clarification: %w", err)
	}
	return nil
}

// TakePending atomically loads and deletes the pending questions for a
// conversation. Returns nil when no questions are pending.
func (s *ClarificationStore) TakePending(ctx context.Context, conversationID string) ([]string, error) {
	query := `
		DELETE FROM pending_clarifications
		WHERE conversation_id = $1
		RETURNING questions
	`
	var payload []byte
	err := s.DB.Pool.QueryRow(ctx, query, conversationID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending clarification: %w", err)
	}

	var questions []string
	if err := json.Unmarshal(payload, &questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	return questions, nil
}
