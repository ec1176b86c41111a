package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when the seed URL has no recognizable domain.
	ErrInvalidURL = errors.New("invalid url: missing or malformed domain")

	// ErrNoPages is returned by profile compilation when no page produced a
	// usable extraction.
	ErrNoPages = errors.New("no pages were successfully analyzed")
)

// LoadError reports a page that could not be loaded. It is page-scoped: the
// crawl records it and moves on.
type LoadError struct {
	URL    string
	Status int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load page %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("load page %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AnalysisError reports LLM output that could not be decoded into the
// extraction schema. RawOutput keeps the model text for diagnosis.
type AnalysisError struct {
	URL       string
	RawOutput string
	Err       error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze page %s: %v", e.URL, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// BrowserError reports a failure to launch or connect to the headless
// browser. It is session-fatal.
type BrowserError struct {
	Err error
}

func (e *BrowserError) Error() string {
	return fmt.Sprintf("browser setup: %v", e.Err)
}

func (e *BrowserError) Unwrap() error { return e.Err }
