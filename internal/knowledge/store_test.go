package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStoreSearch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	metadata := map[string]any{"title": "Example"}
	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id",
		"kb_id",
		"source",
		"source_title",
		"chunk_text",
		"chunk_index",
		"metadata",
		"similarity",
	}).AddRow(
		"1",
		"kb-1",
		"https://example.com",
		"Title",
		"chunk",
		1,
		metadataBytes,
		0.99,
	)

	mock.ExpectQuery("SELECT id").WithArgs("kb-1", sqlmock.AnyArg(), 2).WillReturnRows(rows)

	results, err := store.Search(context.Background(), "kb-1", []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Metadata["title"] != "Example" {
		t.Fatalf("unexpected metadata: %v", results[0].Metadata)
	}
	if results[0].Similarity != 0.99 {
		t.Fatalf("unexpected similarity: %v", results[0].Similarity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreUpsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	chunks := []Chunk{
		{
			KBID:      "kb-1",
			Source:    "https://example.com",
			Title:     "Title",
			Text:      "chunk one",
			Index:     0,
			Embedding: []float32{0.1},
			Metadata:  map[string]any{"section": "one"},
		},
		{
			KBID:      "kb-1",
			Source:    "https://example.com",
			Title:     "Title",
			Text:      "chunk two",
			Index:     1,
			Embedding: []float32{0.2},
			Metadata:  map[string]any{"section": "two"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM kb_chunks").WithArgs("kb-1", "https://example.com").WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectPrepare("INSERT INTO kb_chunks")
	mock.ExpectExec("INSERT INTO kb_chunks").WithArgs(
		"kb-1",
		"https://example.com",
		"Title",
		"chunk one",
		0,
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO kb_chunks").WithArgs(
		"kb-1",
		"https://example.com",
		"Title",
		"chunk two",
		1,
		sqlmock.AnyArg(),
		sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreUpsertRequiresKB(t *testing.T) {
	store := NewStore(&sql.DB{})
	err := store.Upsert(context.Background(), []Chunk{{Source: "https://example.com", Text: "x"}})
	if err == nil {
		t.Fatal("expected error for chunk without kb id")
	}
}

func TestStoreDeleteKB(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("DELETE FROM kb_chunks").WithArgs("kb-1").WillReturnResult(sqlmock.NewResult(1, 7))

	if err := store.DeleteKB(context.Background(), "kb-1"); err != nil {
		t.Fatalf("delete kb: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreSearchRequiresKB(t *testing.T) {
	store := NewStore(&sql.DB{})
	if _, err := store.Search(context.Background(), "", []float32{0.1}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreListSources(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	lastUpdated := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"source", "chunk_count", "last_updated_at"}).
		AddRow("https://example.com/docs", 3, lastUpdated)

	mock.ExpectQuery("SELECT source").WithArgs("kb-1").WillReturnRows(rows)

	sources, err := store.ListSources(context.Background(), "kb-1")
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	if sources[0].Source != "https://example.com/docs" {
		t.Fatalf("unexpected source: %s", sources[0].Source)
	}
	if sources[0].ChunkCount != 3 {
		t.Fatalf("unexpected chunk count: %d", sources[0].ChunkCount)
	}
	if sources[0].LastUpdatedAt == nil {
		t.Fatal("expected last updated time")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreContent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{"id", "kb_id", "source", "source_title", "chunk_text", "chunk_index"}).
		AddRow("1", "kb-1", "upload://notes.txt", "notes", "first chunk", 0).
		AddRow("2", "kb-1", "upload://notes.txt", "notes", "second chunk", 1)

	mock.ExpectQuery("SELECT id, kb_id, source").WithArgs("kb-1", 50, 0).WillReturnRows(rows)

	chunks, err := store.Content(context.Background(), "kb-1", 0, 0)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreCleanupDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("DELETE FROM kb_chunks").WithArgs("kb-1").WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := store.CleanupDuplicates(context.Background(), "kb-1")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
