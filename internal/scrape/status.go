package scrape

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrStatusNotFound = errors.New("scrape status not found")

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Crawl stages, written into the progress blob in order.
const (
	StageInitialized      = "initialized"
	StageScrapingComplete = "scraping_complete"
	StageProcessingProfile = "processing_profile"
	StagePopulatingKB     = "populating_kb"
	StageCompleted        = "completed"
	StageFailed           = "failed"
)

// Status is the client-visible state of a KB's scrape job. One row per KB:
// a new scrape for the same agent replaces the previous status.
type Status struct {
	KBID         string         `json:"kb_id"`
	Status       string         `json:"status"`
	SubmittedURL string         `json:"submitted_url"`
	PagesScraped int            `json:"pages_scraped"`
	TotalPages   int            `json:"total_pages"`
	Progress     map[string]any `json:"progress,omitempty"`
	Error        string         `json:"error,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type StatusStore struct {
	db *sql.DB
}

func NewStatusStore(db *sql.DB) *StatusStore {
	return &StatusStore{db: db}
}

// Set upserts the status row for a KB.
func (s *StatusStore) Set(ctx context.Context, status Status) error {
	if status.KBID == "" {
		return errors.New("kb id is required")
	}
	progressBytes, err := json.Marshal(status.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_status (kb_id, status, submitted_url, pages_scraped, total_pages, progress, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (kb_id) DO UPDATE SET
			status = EXCLUDED.status,
			submitted_url = EXCLUDED.submitted_url,
			pages_scraped = EXCLUDED.pages_scraped,
			total_pages = EXCLUDED.total_pages,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			updated_at = NOW()
	`, status.KBID, status.Status, status.SubmittedURL, status.PagesScraped,
		status.TotalPages, progressBytes, status.Error); err != nil {
		return fmt.Errorf("set scrape status: %w", err)
	}
	return nil
}

// Get returns the status row for a KB, or ErrStatusNotFound.
func (s *StatusStore) Get(ctx context.Context, kbID string) (*Status, error) {
	if kbID == "" {
		return nil, errors.New("kb id is required")
	}

	var status Status
	var progressBytes []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT kb_id, status, submitted_url, pages_scraped, total_pages, progress, error, updated_at
		FROM scrape_status
		WHERE kb_id = $1
	`, kbID).Scan(
		&status.KBID,
		&status.Status,
		&status.SubmittedURL,
		&status.PagesScraped,
		&status.TotalPages,
		&progressBytes,
		&status.Error,
		&status.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scrape status: %w", err)
	}
	if len(progressBytes) > 0 {
		if err := json.Unmarshal(progressBytes, &status.Progress); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
	}
	return &status, nil
}
