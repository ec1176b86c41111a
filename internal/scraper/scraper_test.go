package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*PageData
	errs    map[string]error
	fetched map[string]int
	closed  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, pageURL string) (*PageData, error) {
	f.mu.Lock()
	f.fetched[pageURL]++
	f.mu.Unlock()

	if err, ok := f.errs[pageURL]; ok {
		return nil, err
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return nil, &LoadError{URL: pageURL, Status: 404}
	}
	return page, nil
}

func (f *fakeFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type fakeAnalyzer struct {
	fn func(pageURL, content string) (*PageExtraction, error)
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, pageURL, content string) (*PageExtraction, error) {
	return a.fn(pageURL, content)
}

func defaultFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{fn: func(pageURL, content string) (*PageExtraction, error) {
		return &PageExtraction{
			BusinessName: "Test Business",
			SourceURL:    pageURL,
			Offerings:    []Offering{},
		}, nil
	}}
}

func newTestScraper(t *testing.T, cfg Config, analyzer Analyzer, fetcher PageFetcher) *Scraper {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := New(cfg, analyzer, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.newFetcher = func(Config, *Classifier) (PageFetcher, error) {
		return fetcher, nil
	}
	return s
}

func sitePage(pageURL, content string, links ...string) *PageData {
	return &PageData{URL: pageURL, Content: content, InternalLinks: links}
}

func TestScrapeInvalidURL(t *testing.T) {
	s := newTestScraper(t, DefaultConfig(), defaultFakeAnalyzer(), &fakeFetcher{fetched: map[string]int{}})
	for _, raw := range []string{"", "not a url", "ftp://example.com", "https://nodot"} {
		if _, err := s.Scrape(context.Background(), raw, 0); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Scrape(%q) err = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestScrapeRespectsMaxPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 3
	cfg.MaxConcurrent = 2
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	var links []string
	pages := map[string]*PageData{}
	for i := 0; i < 10; i++ {
		link := fmt.Sprintf("https://example.com/products/p%d", i)
		links = append(links, link)
		pages[link] = sitePage(link, fmt.Sprintf("unique product page number %d with its own words w%d", i, i))
	}
	pages[home] = sitePage(home, "homepage words entirely distinct here", links...)

	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.PagesScraped != 3 {
		t.Errorf("PagesScraped = %d, want 3", result.Metadata.PagesScraped)
	}
	total := 0
	for _, n := range fetcher.fetched {
		total += n
	}
	if total != 3 {
		t.Errorf("fetch calls = %d, want 3", total)
	}
	if !fetcher.closed {
		t.Error("fetcher was not closed")
	}
}

func TestScrapeMaxPagesOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 10
	cfg.MaxConcurrent = 2
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	var links []string
	pages := map[string]*PageData{}
	for i := 0; i < 10; i++ {
		link := fmt.Sprintf("https://example.com/products/p%d", i)
		links = append(links, link)
		pages[link] = sitePage(link, fmt.Sprintf("distinct product page %d wording v%d", i, i))
	}
	pages[home] = sitePage(home, "homepage text shares nothing with products", links...)

	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 2)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.PagesScraped != 2 {
		t.Errorf("PagesScraped = %d, want the override of 2", result.Metadata.PagesScraped)
	}
}

func TestScrapeNeverRevisits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	about := "https://example.com/about"
	pages := map[string]*PageData{
		// Both pages link back to each other and to themselves.
		home:  sitePage(home, "homepage has its own distinct vocabulary", about, home),
		about: sitePage(about, "about page talks using different terms", home, about),
	}
	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	if _, err := s.Scrape(context.Background(), home, 0); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	for pageURL, count := range fetcher.fetched {
		if count > 1 {
			t.Errorf("page %s fetched %d times", pageURL, count)
		}
	}
}

func TestScrapeLinkHarvestWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.LinkHarvestPages = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	a := "https://example.com/services/a"
	b := "https://example.com/services/b"
	pages := map[string]*PageData{
		home: sitePage(home, "homepage vocabulary is totally unique", a),
		// Page a is outside the harvest window, so its link to b is ignored.
		a: sitePage(a, "service a described with other words", b),
		b: sitePage(b, "service b should never be reached"),
	}
	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if fetcher.fetched[b] != 0 {
		t.Error("link harvested outside the first-pages window")
	}
	if result.Metadata.PagesScraped != 2 {
		t.Errorf("PagesScraped = %d, want 2", result.Metadata.PagesScraped)
	}
}

func TestScrapeRejectsNearDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	copyPage := "https://example.com/about"
	content := "identical marketing copy repeated on both pages"
	pages := map[string]*PageData{
		home:     sitePage(home, content, copyPage),
		copyPage: sitePage(copyPage, content),
	}
	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.PagesScraped != 2 {
		t.Errorf("PagesScraped = %d, want 2", result.Metadata.PagesScraped)
	}
	if result.Metadata.PagesAnalyzed != 1 {
		t.Errorf("PagesAnalyzed = %d, want duplicate rejected", result.Metadata.PagesAnalyzed)
	}
}

func TestScrapeDuplicatesSkipAnalysis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	copyPage := "https://example.com/about"
	content := "identical marketing copy repeated on both pages"
	pages := map[string]*PageData{
		home:     sitePage(home, content, copyPage),
		copyPage: sitePage(copyPage, content),
	}
	fetcher := &fakeFetcher{pages: pages, fetched: map[string]int{}}

	var mu sync.Mutex
	analyzed := map[string]int{}
	analyzer := &fakeAnalyzer{fn: func(pageURL, content string) (*PageExtraction, error) {
		mu.Lock()
		analyzed[pageURL]++
		mu.Unlock()
		return &PageExtraction{BusinessName: "Test Business", SourceURL: pageURL, Offerings: []Offering{}}, nil
	}}
	s := newTestScraper(t, cfg, analyzer, fetcher)

	if _, err := s.Scrape(context.Background(), home, 0); err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if analyzed[copyPage] != 0 {
		t.Errorf("duplicate page analyzed %d times, want the completion call skipped", analyzed[copyPage])
	}
	if analyzed[home] != 1 {
		t.Errorf("homepage analyzed %d times, want 1", analyzed[home])
	}
}

func TestScrapeSkipsFailedPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	broken := "https://example.com/pricing"
	about := "https://example.com/about"
	pages := map[string]*PageData{
		home:  sitePage(home, "homepage content stands alone", broken, about),
		about: sitePage(about, "about page reads very differently"),
	}
	fetcher := &fakeFetcher{
		pages:   pages,
		errs:    map[string]error{broken: &LoadError{URL: broken, Status: 500}},
		fetched: map[string]int{},
	}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.PagesScraped != 3 {
		t.Errorf("PagesScraped = %d, want 3", result.Metadata.PagesScraped)
	}
	if result.Metadata.PagesAnalyzed != 2 {
		t.Errorf("PagesAnalyzed = %d, want failed page skipped", result.Metadata.PagesAnalyzed)
	}
}

// richExtraction satisfies every sufficiency dimension.
func richExtraction(pageURL string) *PageExtraction {
	return &PageExtraction{
		BusinessName:     "Rich Business",
		ShortDescription: "A business with complete data",
		Offerings: []Offering{
			{Type: "product", Name: "Kit A", Pricing: "R100"},
			{Type: "product", Name: "Kit B", Pricing: "R200"},
			{Type: "service", Name: "Support Plan", Pricing: "R50"},
		},
		Payment: PaymentInfo{
			Methods: []string{"card", "eft"},
			Plans:   []string{"monthly", "once-off"},
		},
		ValueProps:      []string{"fast", "reliable", "local"},
		Audience:        []string{"startups", "smes", "enterprises"},
		SupportChannels: []string{"email"},
		Contact:         ContactInfo{Email: "sales@example.com"},
		FAQs: []FAQ{
			{Question: "Q1?", Answer: "A1"},
			{Question: "Q2?", Answer: "A2"},
			{Question: "Q3?", Answer: "A3"},
		},
		SourceURL: pageURL,
	}
}

func richSite(home string, count int) map[string]*PageData {
	vocab := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india"}
	pages := map[string]*PageData{}
	var links []string
	for i := 0; i < count; i++ {
		link := fmt.Sprintf("%s/products/p%d", home, i)
		links = append(links, link)
		pages[link] = sitePage(link, fmt.Sprintf("%s page number%d", vocab[i%len(vocab)], i))
	}
	homePage := sitePage(home, "zulu homepage yankee words", links...)
	homePage.SocialLinks = map[string]string{
		"linkedin": "https://linkedin.com/company/rich",
		"facebook": "https://facebook.com/rich",
	}
	pages[home] = homePage
	return pages
}

func TestScrapeEarlyTerminationDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 8
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	fetcher := &fakeFetcher{pages: richSite(home, 9), fetched: map[string]int{}}
	analyzer := &fakeAnalyzer{fn: func(pageURL, content string) (*PageExtraction, error) {
		return richExtraction(pageURL), nil
	}}
	s := newTestScraper(t, cfg, analyzer, fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.EarlyTermination {
		t.Error("early termination fired despite being disabled")
	}
	if result.Metadata.PagesScraped != 8 {
		t.Errorf("PagesScraped = %d, want the full budget", result.Metadata.PagesScraped)
	}
}

func TestScrapeEarlyTerminationWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 10
	cfg.MaxConcurrent = 1
	cfg.DisableEarlyTermination = false
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	fetcher := &fakeFetcher{pages: richSite(home, 9), fetched: map[string]int{}}
	analyzer := &fakeAnalyzer{fn: func(pageURL, content string) (*PageExtraction, error) {
		return richExtraction(pageURL), nil
	}}
	s := newTestScraper(t, cfg, analyzer, fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !result.Metadata.EarlyTermination {
		t.Fatal("expected early termination with sufficient data")
	}
	if result.Metadata.PagesScraped >= 10 {
		t.Errorf("PagesScraped = %d, want fewer than the budget", result.Metadata.PagesScraped)
	}
}

func TestScrapeWritesArtifact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	fetcher := &fakeFetcher{
		pages:   map[string]*PageData{home: sitePage(home, "homepage standalone content")},
		fetched: map[string]int{},
	}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	result, err := s.Scrape(context.Background(), home, 0)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if result.Metadata.Filename == "" {
		t.Fatal("artifact filename missing from metadata")
	}
	if !strings.HasPrefix(result.Metadata.Filename, "multi_page_scrape_example.com_") {
		t.Errorf("Filename = %q", result.Metadata.Filename)
	}
	if _, err := os.Stat(filepath.Join(cfg.ResultsDir, result.Metadata.Filename)); err != nil {
		t.Errorf("artifact not on disk: %v", err)
	}
}

func TestScrapeNoAnalyzablePages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResultsDir = t.TempDir()

	home := "https://example.com"
	fetcher := &fakeFetcher{
		pages:   map[string]*PageData{},
		fetched: map[string]int{},
	}
	s := newTestScraper(t, cfg, defaultFakeAnalyzer(), fetcher)

	if _, err := s.Scrape(context.Background(), home, 0); !errors.Is(err, ErrNoPages) {
		t.Fatalf("err = %v, want ErrNoPages", err)
	}
}

func TestNormalizeSeedURL(t *testing.T) {
	cases := []struct {
		raw      string
		wantURL  string
		wantHost string
		wantErr  bool
	}{
		{"example.com", "https://example.com", "example.com", false},
		{"https://example.com/", "https://example.com", "example.com", false},
		{"http://www.example.com/shop/", "http://www.example.com/shop", "www.example.com", false},
		{"", "", "", true},
		{"localhost", "", "", true},
	}
	for _, tc := range cases {
		gotURL, gotHost, err := NormalizeSeedURL(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("NormalizeSeedURL(%q) err = %v, want ErrInvalidURL", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeSeedURL(%q): %v", tc.raw, err)
			continue
		}
		if gotURL != tc.wantURL || gotHost != tc.wantHost {
			t.Errorf("NormalizeSeedURL(%q) = (%q, %q), want (%q, %q)", tc.raw, gotURL, gotHost, tc.wantURL, tc.wantHost)
		}
	}
}
