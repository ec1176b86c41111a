package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrAgentNotFound = errors.New("agent not found")

// Agent is one tenant-facing sales agent. The KB id doubles as the agent id:
// every agent owns exactly one knowledge base.
type Agent struct {
	KBID      string    `json:"kb_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Config holds the per-agent behavior knobs.
type Config struct {
	KBID          string  `json:"kb_id"`
	SystemPrompt  string  `json:"system_prompt"`
	MaxIterations int     `json:"max_iterations"`
	Temperature   float64 `json:"temperature"`
	HandoffMarker string  `json:"handoff_marker"`
}

// DefaultSystemPrompt is the sales persona an agent starts with before the
// tenant customizes it.
const DefaultSystemPrompt = `You are a knowledgeable, friendly sales agent for this business.
Answer questions using ONLY the business knowledge provided in context.
Be concise, helpful, and honest. If the knowledge base does not contain the
answer, or the customer asks for something that needs a human (refunds,
complaints, custom quotes), reply with your best short response followed by
the marker (needs help).`

const (
	DefaultMaxIterations = 5
	DefaultTemperature   = 0.7
	DefaultHandoffMarker = "(needs help)"
)

func DefaultConfig(kbID string) Config {
	return Config{
		KBID:          kbID,
		SystemPrompt:  DefaultSystemPrompt,
		MaxIterations: DefaultMaxIterations,
		Temperature:   DefaultTemperature,
		HandoffMarker: DefaultHandoffMarker,
	}
}

// Registry persists agents, their configs, and their raw JSON payloads.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// CreateAgent provisions a new agent with a fresh KB id and default config.
func (r *Registry) CreateAgent(ctx context.Context, name string) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent name is required")
	}

	agent := &Agent{KBID: uuid.NewString(), Name: name}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO agents (kb_id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`, agent.KBID, agent.Name).Scan(&agent.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	cfg := DefaultConfig(agent.KBID)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_config (kb_id, system_prompt, max_iterations, temperature, handoff_marker)
		VALUES ($1, $2, $3, $4, $5)
	`, cfg.KBID, cfg.SystemPrompt, cfg.MaxIterations, cfg.Temperature, cfg.HandoffMarker); err != nil {
		return nil, fmt.Errorf("insert agent config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return agent, nil
}

func (r *Registry) GetAgent(ctx context.Context, kbID string) (*Agent, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	var agent Agent
	err := r.db.QueryRowContext(ctx, `
		SELECT kb_id, name, created_at FROM agents WHERE kb_id = $1
	`, kbID).Scan(&agent.KBID, &agent.Name, &agent.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &agent, nil
}

func (r *Registry) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kb_id, name, created_at FROM agents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.KBID, &agent.Name, &agent.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes the agent and every row keyed to its KB. Chunk deletion
// lives in the knowledge store; the handler coordinates both.
func (r *Registry) DeleteAgent(ctx context.Context, kbID string) error {
	if kbID == "" {
		return errors.New("kb id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{
		"agent_config", "json_payloads", "uploaded_files",
		"conversation_history", "kb_update_log", "scrape_status",
	} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE kb_id = $1`, table), kbID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE kb_id = $1`, kbID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAgentNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Registry) GetConfig(ctx context.Context, kbID string) (*Config, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	var cfg Config
	err := r.db.QueryRowContext(ctx, `
		SELECT kb_id, system_prompt, max_iterations, temperature, handoff_marker
		FROM agent_config WHERE kb_id = $1
	`, kbID).Scan(&cfg.KBID, &cfg.SystemPrompt, &cfg.MaxIterations, &cfg.Temperature, &cfg.HandoffMarker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent config: %w", err)
	}
	return &cfg, nil
}

// UpdateConfig overwrites the agent's config row. Zero-value fields fall back
// to defaults so a partial update cannot brick an agent.
func (r *Registry) UpdateConfig(ctx context.Context, cfg Config) error {
	if cfg.KBID == "" {
		return errors.New("kb id is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.HandoffMarker == "" {
		cfg.HandoffMarker = DefaultHandoffMarker
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_config
		SET system_prompt = $2, max_iterations = $3, temperature = $4, handoff_marker = $5
		WHERE kb_id = $1
	`, cfg.KBID, cfg.SystemPrompt, cfg.MaxIterations, cfg.Temperature, cfg.HandoffMarker)
	if err != nil {
		return fmt.Errorf("update agent config: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update config rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// SavePayload stores a raw JSON payload for later inspection; ingestion into
// the KB happens separately through the ingestor.
func (r *Registry) SavePayload(ctx context.Context, kbID string, payload any) error {
	if kbID == "" {
		return errors.New("kb id is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO json_payloads (kb_id, payload)
		VALUES ($1, $2)
	`, kbID, raw); err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

// Payloads returns the stored JSON payloads of a KB, newest first.
func (r *Registry) Payloads(ctx context.Context, kbID string) ([]json.RawMessage, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM json_payloads WHERE kb_id = $1 ORDER BY created_at DESC
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list payloads: %w", err)
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		payloads = append(payloads, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payloads: %w", err)
	}
	return payloads, nil
}
