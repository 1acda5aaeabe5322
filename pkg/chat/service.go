// Package chat owns conversations and their message history.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/research"
)

type Service struct {
	DB *database.PostgresDB
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewService(db *database.PostgresDB) *Service {
	return &Service{DB: db}
}

func (s *Service) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	query := `INSERT INTO conversations (id, title) VALUES ($1, $2) RETURNING id, title, created_at, updated_at`

	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx, query, uuid.New(), title).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	query := `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Service) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := s.DB.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Service) saveMessage(ctx context.Context, conversationID, role, content string) error {
	id, err := uuid.Parse(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	_, err = s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, $3, $4)`,
		uuid.New(), id, role, content)
	if err != nil {
		return fmt.Errorf("failed to save %s message: %w", role, err)
	}
	_, err = s.DB.Pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

// SaveUserMessage records a user turn and bumps the conversation's
// updated_at.
func (s *Service) SaveUserMessage(ctx context.Context, conversationID, content string) error {
	return s.saveMessage(ctx, conversationID, "user", content)
}

// SaveAssistantMessage records a model turn.
func (s *Service) SaveAssistantMessage(ctx context.Context, conversationID, content string) error {
	return s.saveMessage(ctx, conversationID, "model", content)
}

// History returns the conversation turns oldest first.
func (s *Service) History(ctx context.Context, conversationID string) ([]research.Turn, error) {
	id, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	msgs, err := s.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	turns := make([]research.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, research.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}
