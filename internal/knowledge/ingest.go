package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Ingestor is the write path into a knowledge base: chunk, embed, upsert,
// and record the update in kb_update_log.
type Ingestor struct {
	store    *Store
	embedder *Embedder
	db       *sql.DB
	logger   *logrus.Logger
}

func NewIngestor(store *Store, embedder *Embedder, db *sql.DB, logger *logrus.Logger) *Ingestor {
	return &Ingestor{store: store, embedder: embedder, db: db, logger: logger}
}

// AddText ingests free text into a KB under the given source label. Content
// that chunks down to nothing (navigation, near-empty pages) is not an error
// to the caller; it just stores zero chunks.
func (i *Ingestor) AddText(ctx context.Context, kbID, source, title, text string) (int, error) {
	if kbID == "" {
		return 0, errors.New("kb id is required")
	}
	if source == "" {
		return 0, errors.New("source is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("text is required")
	}

	chunks, err := i.embedder.EmbedDocument(ctx, source, title, text)
	if errors.Is(err, ErrNoChunks) {
		i.logger.WithFields(logrus.Fields{
			"kb_id":  kbID,
			"source": source,
		}).Warn("Content produced no usable chunks")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("embed content for %s: %w", source, err)
	}

	for idx := range chunks {
		chunks[idx].KBID = kbID
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks for %s: %w", source, err)
	}

	i.logUpdate(ctx, kbID, source, len(chunks))
	return len(chunks), nil
}

// AddJSON flattens an arbitrary JSON document into readable text and ingests
// it, so structured payloads (business profiles, product feeds) become
// retrievable prose.
func (i *Ingestor) AddJSON(ctx context.Context, kbID, source, title string, payload any) (int, error) {
	text := FlattenJSON(payload)
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("payload flattened to empty text")
	}
	return i.AddText(ctx, kbID, source, title, text)
}

func (i *Ingestor) logUpdate(ctx context.Context, kbID, source string, chunkCount int) {
	if _, err := i.db.ExecContext(ctx, `
		INSERT INTO kb_update_log (kb_id, source, chunk_count)
		VALUES ($1, $2, $3)
	`, kbID, source, chunkCount); err != nil {
		// The log is an audit convenience; ingestion already succeeded.
		i.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to record kb update")
	}
}

// FlattenJSON renders nested maps and lists as indented "key: value" lines.
// Map keys are emitted in sorted order so output is deterministic.
func FlattenJSON(value any) string {
	var builder strings.Builder
	flattenValue(&builder, value, "", 0)
	return strings.TrimRight(builder.String(), "\n")
}

func flattenValue(builder *strings.Builder, value any, label string, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := value.(type) {
	case map[string]any:
		if label != "" {
			builder.WriteString(indent + humanizeKey(label) + ":\n")
			depth++
			indent = strings.Repeat("  ", depth)
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(builder, v[k], k, depth)
		}
	case []any:
		if label != "" {
			builder.WriteString(indent + humanizeKey(label) + ":\n")
			depth++
		}
		for _, item := range v {
			flattenValue(builder, item, "", depth)
		}
	case nil:
		// Skip nulls entirely; "key: null" adds noise without meaning.
	case string:
		if strings.TrimSpace(v) == "" {
			return
		}
		writeLeaf(builder, indent, label, v)
	case bool:
		writeLeaf(builder, indent, label, fmt.Sprintf("%t", v))
	case float64:
		writeLeaf(builder, indent, label, trimFloat(v))
	default:
		writeLeaf(builder, indent, label, fmt.Sprintf("%v", v))
	}
}

func writeLeaf(builder *strings.Builder, indent, label, value string) {
	if label == "" {
		builder.WriteString(indent + value + "\n")
		return
	}
	builder.WriteString(indent + humanizeKey(label) + ": " + value + "\n")
}

// humanizeKey turns snake_case JSON keys into readable labels.
func humanizeKey(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
