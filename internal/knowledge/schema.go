package knowledge

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureEmbeddingDimensions checks whether the kb_chunks embedding column
// matches the dimension count of the active embedding model. When they differ
// it truncates stale vectors, alters the column type, and rebuilds the HNSW
// index. Returns true when a migration was performed.
func EnsureEmbeddingDimensions(ctx context.Context, db *sql.DB, target int) (bool, error) {
	if target <= 0 {
		return false, fmt.Errorf("invalid embedding dimensions: %d", target)
	}

	// pgvector stores the dimension count in atttypmod for vector(N) columns.
	var current int
	err := db.QueryRowContext(ctx, `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'kb_chunks'::regclass
		  AND attname = 'embedding'
	`).Scan(&current)
	if err != nil {
		return false, fmt.Errorf("query current embedding dimensions: %w", err)
	}

	if current == target {
		return false, nil
	}

	// Dimensions changed, so the stored vectors came from a different model
	// and cannot be meaningfully searched. Truncate before altering.
	stmts := []string{
		`DROP INDEX IF EXISTS kb_chunks_embedding_idx`,
		`TRUNCATE kb_chunks`,
		fmt.Sprintf(`ALTER TABLE kb_chunks ALTER COLUMN embedding TYPE vector(%d)`, target),
		`CREATE INDEX kb_chunks_embedding_idx ON kb_chunks USING hnsw (embedding vector_cosine_ops) WITH (m = 24, ef_construction = 256)`,
	}
	for _, stmt := range stmts {
		if _, execErr := db.ExecContext(ctx, stmt); execErr != nil {
			return false, fmt.Errorf("migrate embedding dimensions (%d to %d): %w", current, target, execErr)
		}
	}

	return true, nil
}
