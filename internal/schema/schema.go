// Package schema owns the database DDL. Ensure is idempotent and runs at
// startup, so a fresh Postgres with the pgvector extension available is all a
// deployment needs.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultEmbeddingDimensions is used for the initial kb_chunks column when no
// dimension count is configured. Matches OpenAI text-embedding-3-small.
const DefaultEmbeddingDimensions = 1536

var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS agents (
		kb_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS agent_config (
		kb_id TEXT PRIMARY KEY REFERENCES agents(kb_id),
		system_prompt TEXT NOT NULL,
		max_iterations INT NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		handoff_marker TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS json_payloads (
		id BIGSERIAL PRIMARY KEY,
		kb_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS json_payloads_kb_id_idx ON json_payloads (kb_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS uploaded_files (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		kb_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		chunk_count INT NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS uploaded_files_kb_id_idx ON uploaded_files (kb_id, uploaded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS conversation_history (
		id BIGSERIAL PRIMARY KEY,
		kb_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS conversation_history_kb_id_idx ON conversation_history (kb_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS kb_update_log (
		id BIGSERIAL PRIMARY KEY,
		kb_id TEXT NOT NULL,
		source TEXT NOT NULL,
		chunk_count INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS kb_update_log_kb_id_idx ON kb_update_log (kb_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS scrape_status (
		kb_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		submitted_url TEXT NOT NULL DEFAULT '',
		pages_scraped INT NOT NULL DEFAULT 0,
		total_pages INT NOT NULL DEFAULT 0,
		progress JSONB,
		error TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// chunkStatements are templated on the embedding dimension count, which is
// only known at startup.
func chunkStatements(dimensions int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
			id BIGSERIAL PRIMARY KEY,
			kb_id TEXT NOT NULL,
			source TEXT NOT NULL,
			source_title TEXT NOT NULL DEFAULT '',
			chunk_text TEXT NOT NULL,
			chunk_index INT NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS kb_chunks_kb_id_idx ON kb_chunks (kb_id)`,
		`CREATE INDEX IF NOT EXISTS kb_chunks_kb_id_source_idx ON kb_chunks (kb_id, source)`,
		`CREATE INDEX IF NOT EXISTS kb_chunks_embedding_idx ON kb_chunks
			USING hnsw (embedding vector_cosine_ops) WITH (m = 24, ef_construction = 256)`,
	}
}

// Ensure creates all tables and indexes if they do not exist.
func Ensure(ctx context.Context, db *sql.DB, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		embeddingDimensions = DefaultEmbeddingDimensions
	}
	all := append(append([]string{}, statements...), chunkStatements(embeddingDimensions)...)
	for _, stmt := range all {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
