package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded slice of KB content. KBID scopes every operation:
// a knowledge base belongs to exactly one agent.
type Chunk struct {
	ID         string
	KBID       string
	Source     string
	Title      string
	Text       string
	Index      int
	Embedding  []float32
	Metadata   map[string]any
	Similarity float64
}

// SourceSummary describes one ingested source within a KB.
type SourceSummary struct {
	Source        string
	ChunkCount    int
	LastUpdatedAt *time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns the KB chunks nearest to the query embedding by cosine
// distance, most similar first.
func (s *Store) Search(ctx context.Context, kbID string, embedding []float32, limit int) ([]Chunk, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	if len(embedding) == 0 {
		return nil, errors.New("embedding is required")
	}
	if limit <= 0 {
		limit = 5
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
			kb_id,
			source,
			source_title,
			chunk_text,
			chunk_index,
			metadata,
			1 - (embedding <=> $2) AS similarity
		FROM kb_chunks
		WHERE kb_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, kbID, pgvector.NewVector(embedding), limit)
	searchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search kb: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var metadataBytes []byte
		if err := rows.Scan(
			&chunk.ID,
			&chunk.KBID,
			&chunk.Source,
			&chunk.Title,
			&chunk.Text,
			&chunk.Index,
			&metadataBytes,
			&chunk.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan kb chunk: %w", err)
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb chunks: %w", err)
	}

	return chunks, nil
}

// Upsert replaces every chunk of each (kb, source) pair present in the input
// inside one transaction, so re-ingesting a source never leaves stale chunks.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	type sourceKey struct {
		kbID   string
		source string
	}
	sources := make(map[sourceKey]bool)
	for _, chunk := range chunks {
		if chunk.KBID == "" {
			return errors.New("kb id is required for chunk")
		}
		if chunk.Source == "" {
			return errors.New("source is required for chunk")
		}
		sources[sourceKey{chunk.KBID, chunk.Source}] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for key := range sources {
		if _, execErr := tx.ExecContext(ctx, `
			DELETE FROM kb_chunks
			WHERE kb_id = $1 AND source = $2
		`, key.kbID, key.source); execErr != nil {
			return fmt.Errorf("delete existing chunks: %w", execErr)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kb_chunks (
			kb_id,
			source,
			source_title,
			chunk_text,
			chunk_index,
			embedding,
			metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadataBytes, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(
			ctx,
			chunk.KBID,
			chunk.Source,
			chunk.Title,
			chunk.Text,
			chunk.Index,
			pgvector.NewVector(chunk.Embedding),
			metadataBytes,
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	chunksStoredTotal.Add(float64(len(chunks)))
	return nil
}

// DeleteKB removes every chunk of a knowledge base.
func (s *Store) DeleteKB(ctx context.Context, kbID string) error {
	if kbID == "" {
		return errors.New("kb id is required")
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM kb_chunks WHERE kb_id = $1
	`, kbID); err != nil {
		return fmt.Errorf("delete kb: %w", err)
	}
	return nil
}

// ListSources summarizes the ingested sources of a KB.
func (s *Store) ListSources(ctx context.Context, kbID string) ([]SourceSummary, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source,
			COUNT(*) AS chunk_count,
			MAX(created_at) AS last_updated_at
		FROM kb_chunks
		WHERE kb_id = $1
		GROUP BY source
		ORDER BY source
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceSummary
	for rows.Next() {
		var source SourceSummary
		var lastUpdated sql.NullTime
		if err := rows.Scan(&source.Source, &source.ChunkCount, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if lastUpdated.Valid {
			t := lastUpdated.Time
			source.LastUpdatedAt = &t
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return sources, nil
}

// Content pages through a KB's chunk text without embeddings, for inspection
// endpoints.
func (s *Store) Content(ctx context.Context, kbID string, limit, offset int) ([]Chunk, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, source, source_title, chunk_text, chunk_index
		FROM kb_chunks
		WHERE kb_id = $1
		ORDER BY source, chunk_index
		LIMIT $2 OFFSET $3
	`, kbID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list kb content: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.KBID, &chunk.Source, &chunk.Title, &chunk.Text, &chunk.Index); err != nil {
			return nil, fmt.Errorf("scan kb content: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb content: %w", err)
	}

	return chunks, nil
}

// CleanupDuplicates deletes chunks whose whitespace-normalized lowercased
// text duplicates an earlier chunk in the same KB. Returns the number removed.
func (s *Store) CleanupDuplicates(ctx context.Context, kbID string) (int64, error) {
	if kbID == "" {
		return 0, errors.New("kb id is required")
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM kb_chunks
		WHERE id IN (
			SELECT id FROM (
				SELECT id,
					ROW_NUMBER() OVER (
						PARTITION BY lower(regexp_replace(chunk_text, '\s+', ' ', 'g'))
						ORDER BY id
					) AS occurrence
				FROM kb_chunks
				WHERE kb_id = $1
			) ranked
			WHERE ranked.occurrence > 1
		)
	`, kbID)
	if err != nil {
		return 0, fmt.Errorf("cleanup duplicates: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup duplicates rows affected: %w", err)
	}
	return removed, nil
}
