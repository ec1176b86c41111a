package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"barker/internal/agents"
	"barker/internal/knowledge"
	"barker/pkg/llm"
)

const (
	ReplyTypeAnswer  = "answer"
	ReplyTypeHandoff = "handoff"
	ReplyTypeError   = "error"

	defaultHistoryLimit = 20
	defaultTopK         = 5

	genericErrorAnswer = "Sorry, something went wrong while answering. Please try again."
)

// Reply is what the agent sends back for one customer message.
type Reply struct {
	Type   string `json:"type"`
	Answer string `json:"answer"`
}

// ConfigSource yields per-agent config; production wraps the registry in a
// TTL cache so the chat hot path does not hit postgres per message.
type ConfigSource interface {
	Get(ctx context.Context, kbID string) (*agents.Config, error)
}

// Retriever is the KB read path the orchestrator needs.
type Retriever interface {
	Search(ctx context.Context, kbID string, embedding []float32, limit int) ([]knowledge.Chunk, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// HistoryStore is the conversation persistence the orchestrator needs.
type HistoryStore interface {
	AddMessage(ctx context.Context, kbID, role, content string) error
	History(ctx context.Context, kbID string, limit int) ([]Message, error)
}

// Orchestrator runs one retrieval-augmented completion per customer message
// and classifies the outcome as answer, handoff, or error.
type Orchestrator struct {
	provider llm.Provider
	embedder QueryEmbedder
	kb       Retriever
	history  HistoryStore
	configs  ConfigSource
	logger   *logrus.Logger

	HistoryLimit int
	TopK         int
}

func NewOrchestrator(
	provider llm.Provider,
	embedder QueryEmbedder,
	kb Retriever,
	history HistoryStore,
	configs ConfigSource,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		provider:     provider,
		embedder:     embedder,
		kb:           kb,
		history:      history,
		configs:      configs,
		logger:       logger,
		HistoryLimit: defaultHistoryLimit,
		TopK:         defaultTopK,
	}
}

// Chat answers a customer message for the given KB. The customer turn is
// always persisted; the AI turn is persisted only for answer and handoff
// replies, never for errors.
func (o *Orchestrator) Chat(ctx context.Context, kbID, message string) (*Reply, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is required")
	}

	start := time.Now()
	defer func() {
		chatDuration.Observe(time.Since(start).Seconds())
	}()

	cfg, err := o.configs.Get(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}

	history, err := o.history.History(ctx, kbID, o.HistoryLimit)
	if err != nil {
		o.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to load history, answering without it")
		history = nil
	}

	chunks := o.retrieveContext(ctx, kbID, message)
	messages := buildMessages(cfg, chunks, history, message)

	if err := o.history.AddMessage(ctx, kbID, RoleHuman, message); err != nil {
		o.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to persist customer message")
	}

	answer, err := o.complete(ctx, messages)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			o.logger.WithError(err).WithField("kb_id", kbID).Error("Completion failed")
		}
		chatRequestsTotal.WithLabelValues(ReplyTypeError).Inc()
		return &Reply{Type: ReplyTypeError, Answer: genericErrorAnswer}, nil
	}

	answer = cleanAnswer(answer)
	marker := cfg.HandoffMarker
	if marker == "" {
		marker = agents.DefaultHandoffMarker
	}

	reply := &Reply{Type: ReplyTypeAnswer, Answer: answer}
	if strings.Contains(strings.ToLower(answer), strings.ToLower(marker)) {
		reply.Type = ReplyTypeHandoff
		reply.Answer = stripMarker(answer, marker)
	}

	// The stored turn keeps the marker so the conversation list can flag
	// handoffs; only the customer-facing reply is stripped.
	if err := o.history.AddMessage(ctx, kbID, RoleAI, answer); err != nil {
		o.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to persist agent reply")
	}

	chatRequestsTotal.WithLabelValues(reply.Type).Inc()
	return reply, nil
}

// retrieveContext embeds the query and fetches the top KB chunks. Retrieval
// failures degrade to an empty context rather than failing the chat.
func (o *Orchestrator) retrieveContext(ctx context.Context, kbID, message string) []knowledge.Chunk {
	embedding, err := o.embedder.EmbedQuery(ctx, message)
	if err != nil {
		o.logger.WithError(err).WithField("kb_id", kbID).Warn("Query embedding failed")
		return nil
	}
	chunks, err := o.kb.Search(ctx, kbID, embedding, o.TopK)
	if err != nil {
		o.logger.WithError(err).WithField("kb_id", kbID).Warn("KB search failed")
		return nil
	}
	return chunks
}

func buildMessages(cfg *agents.Config, chunks []knowledge.Chunk, history []Message, message string) []llm.Message {
	var prompt strings.Builder
	prompt.WriteString(cfg.SystemPrompt)
	if len(chunks) > 0 {
		prompt.WriteString("\n\nBusiness knowledge:\n")
		for _, chunk := range chunks {
			prompt.WriteString("---\n")
			prompt.WriteString(chunk.Text)
			prompt.WriteString("\n")
		}
	}

	messages := []llm.Message{{Role: "system", Content: prompt.String()}}
	for _, turn := range history {
		role := "user"
		if turn.Role == RoleAI {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: message})
}

func (o *Orchestrator) complete(ctx context.Context, messages []llm.Message) (string, error) {
	stream, err := o.provider.Complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		builder.WriteString(chunk.Content)
	}
	return builder.String(), nil
}

// cleanAnswer strips wrapping whitespace and surrounding quotes models
// sometimes add.
func cleanAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if len(answer) >= 2 && answer[0] == '"' && answer[len(answer)-1] == '"' {
		answer = strings.TrimSpace(answer[1 : len(answer)-1])
	}
	return answer
}

// stripMarker removes every occurrence of the handoff marker, case-insensitively.
func stripMarker(answer, marker string) string {
	lower := strings.ToLower(answer)
	lowerMarker := strings.ToLower(marker)
	var builder strings.Builder
	for {
		idx := strings.Index(lower, lowerMarker)
		if idx == -1 {
			builder.WriteString(answer)
			break
		}
		builder.WriteString(answer[:idx])
		answer = answer[idx+len(marker):]
		lower = lower[idx+len(lowerMarker):]
	}
	return strings.TrimSpace(builder.String())
}
