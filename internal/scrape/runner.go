package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"barker/internal/scraper"
)

// SiteScraper runs one full crawl session. maxPages overrides the crawl page
// budget when positive.
type SiteScraper interface {
	Scrape(ctx context.Context, url string, maxPages int) (*scraper.Result, error)
}

// ProfileIngestor writes a flattened JSON document into a KB.
type ProfileIngestor interface {
	AddJSON(ctx context.Context, kbID, source, title string, payload any) (int, error)
}

// StatusWriter is the part of the status store the runner needs.
type StatusWriter interface {
	Set(ctx context.Context, status Status) error
}

// Runner drives a scrape job through its stages and keeps the status row
// current. A failed crawl leaves the KB untouched: ingestion happens only
// after the profile compiles.
type Runner struct {
	scraper  SiteScraper
	ingestor ProfileIngestor
	statuses StatusWriter
	maxPages int
	logger   *logrus.Logger
}

// NewRunner wires a runner. defaultMaxPages is the crawl page budget used
// when a job carries no override; it seeds the total_pages reported while a
// job is in flight.
func NewRunner(siteScraper SiteScraper, ingestor ProfileIngestor, statuses StatusWriter, defaultMaxPages int, logger *logrus.Logger) *Runner {
	return &Runner{scraper: siteScraper, ingestor: ingestor, statuses: statuses, maxPages: defaultMaxPages, logger: logger}
}

// Run executes one scrape job. maxPages overrides the configured page budget
// when positive. Run is designed for a background goroutine: every outcome,
// including panics, lands in the status row rather than propagating.
func (r *Runner) Run(ctx context.Context, kbID, url string, maxPages int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"kb_id": kbID,
				"panic": fmt.Sprintf("%v", rec),
			}).Error("Scrape job panicked")
			r.fail(ctx, kbID, url, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	totalPages := maxPages
	if totalPages <= 0 {
		totalPages = r.maxPages
	}

	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusProcessing,
		SubmittedURL: url,
		TotalPages:   totalPages,
		Progress:     map[string]any{"stage": StageInitialized},
	})

	result, err := r.scraper.Scrape(ctx, url, maxPages)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"kb_id": kbID,
			"url":   url,
		}).Error("Crawl failed")
		r.fail(ctx, kbID, url, err.Error())
		return
	}

	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusProcessing,
		SubmittedURL: url,
		PagesScraped: result.Metadata.PagesScraped,
		TotalPages:   result.Metadata.PagesScraped,
		Progress: map[string]any{
			"stage":          StageScrapingComplete,
			"pages_analyzed": result.Metadata.PagesAnalyzed,
		},
	})

	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusProcessing,
		SubmittedURL: url,
		PagesScraped: result.Metadata.PagesScraped,
		TotalPages:   result.Metadata.PagesScraped,
		Progress:     map[string]any{"stage": StageProcessingProfile},
	})

	profileMap, err := profileToMap(result)
	if err != nil {
		r.fail(ctx, kbID, url, fmt.Sprintf("process profile: %v", err))
		return
	}

	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusProcessing,
		SubmittedURL: url,
		PagesScraped: result.Metadata.PagesScraped,
		TotalPages:   result.Metadata.PagesScraped,
		Progress:     map[string]any{"stage": StagePopulatingKB},
	})

	source := "scrape://" + result.Metadata.BaseDomain
	title := result.Profile.BusinessName
	chunks, err := r.ingestor.AddJSON(ctx, kbID, source, title, profileMap)
	if err != nil {
		r.fail(ctx, kbID, url, fmt.Sprintf("populate kb: %v", err))
		return
	}

	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusCompleted,
		SubmittedURL: url,
		PagesScraped: result.Metadata.PagesScraped,
		TotalPages:   result.Metadata.PagesScraped,
		Progress: map[string]any{
			"stage":          StageCompleted,
			"pages_analyzed": result.Metadata.PagesAnalyzed,
			"chunks_added":   chunks,
			"business_name":  result.Profile.BusinessName,
		},
	})

	r.logger.WithFields(logrus.Fields{
		"kb_id":         kbID,
		"base_domain":   result.Metadata.BaseDomain,
		"pages_scraped": result.Metadata.PagesScraped,
		"chunks_added":  chunks,
	}).Info("Scrape job complete")
}

func (r *Runner) fail(ctx context.Context, kbID, url, message string) {
	r.setStage(ctx, Status{
		KBID:         kbID,
		Status:       StatusFailed,
		SubmittedURL: url,
		Error:        message,
		Progress:     map[string]any{"stage": StageFailed},
	})
}

func (r *Runner) setStage(ctx context.Context, status Status) {
	if err := r.statuses.Set(ctx, status); err != nil {
		r.logger.WithError(err).WithField("kb_id", status.KBID).Warn("Failed to write scrape status")
	}
}

// profileToMap round-trips the compiled result through JSON so the ingestor
// flattens the exact client-visible field names.
func profileToMap(result *scraper.Result) (map[string]any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return asMap, nil
}
