package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barker/internal/agents"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is one turn of a KB's conversation history.
type Message struct {
	ID        string    `json:"id"`
	KBID      string    `json:"kb_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore persists chat history per KB. Each agent has a single
// rolling conversation; the widget is anonymous, so there is no per-user
// threading.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) AddMessage(ctx context.Context, kbID, role, content string) error {
	if kbID == "" {
		return errors.New("kb id is required")
	}
	if role != RoleHuman && role != RoleAI {
		return fmt.Errorf("invalid role %q", role)
	}
	if content == "" {
		return errors.New("content is required")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_history (kb_id, role, content)
		VALUES ($1, $2, $3)
	`, kbID, role, content); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// History returns the most recent messages in chronological order.
func (s *ConversationStore) History(ctx context.Context, kbID string, limit int) ([]Message, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, role, content, created_at
		FROM (
			SELECT id, kb_id, role, content, created_at
			FROM conversation_history
			WHERE kb_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, kbID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.KBID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return messages, nil
}

const previewRunes = 50

// ConversationPreview is the human-desk summary of one KB's conversation:
// who it belongs to, what was said last, and whether the agent asked for
// a human.
type ConversationPreview struct {
	KBID          string    `json:"kb_id"`
	AgentName     string    `json:"name,omitempty"`
	LastTimestamp time.Time `json:"last_message_timestamp"`
	LastPreview   string    `json:"last_message_preview"`
	MessageCount  int       `json:"message_count"`
	NeedsHuman    bool      `json:"needs_human_attention"`
}

// Conversations returns one preview per KB that has history, newest activity
// first. A conversation needs human attention when its latest message is an
// AI turn still carrying the agent's handoff marker.
func (s *ConversationStore) Conversations(ctx context.Context) ([]ConversationPreview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (h.kb_id)
			h.kb_id,
			COALESCE(a.name, ''),
			h.role,
			h.content,
			h.created_at,
			COUNT(*) OVER (PARTITION BY h.kb_id),
			COALESCE(c.handoff_marker, '')
		FROM conversation_history h
		LEFT JOIN agents a ON a.kb_id = h.kb_id
		LEFT JOIN agent_config c ON c.kb_id = h.kb_id
		ORDER BY h.kb_id, h.created_at DESC, h.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var previews []ConversationPreview
	for rows.Next() {
		var (
			preview ConversationPreview
			role    string
			content string
			marker  string
		)
		if err := rows.Scan(&preview.KBID, &preview.AgentName, &role, &content,
			&preview.LastTimestamp, &preview.MessageCount, &marker); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if marker == "" {
			marker = agents.DefaultHandoffMarker
		}
		preview.LastPreview = previewText(content)
		preview.NeedsHuman = role == RoleAI &&
			strings.Contains(strings.ToLower(content), strings.ToLower(marker))
		previews = append(previews, preview)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return previews, nil
}

// previewText shortens a message to its first characters for list views.
func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}

func (s *ConversationStore) DeleteHistory(ctx context.Context, kbID string) error {
	if kbID == "" {
		return errors.New("kb id is required")
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_history WHERE kb_id = $1
	`, kbID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
