package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-.]`)

// Scraper crawls a business website breadth-first and compiles a profile
// from per-page LLM extractions. One Scraper serves many crawl sessions;
// each session launches its own browser.
type Scraper struct {
	cfg        Config
	classifier *Classifier
	analyzer   Analyzer
	logger     *logrus.Logger

	// newFetcher is swappable for tests; production uses NewRodFetcher.
	newFetcher func(Config, *Classifier) (PageFetcher, error)
}

func New(cfg Config, analyzer Analyzer, logger *logrus.Logger) (*Scraper, error) {
	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("compile url patterns: %w", err)
	}
	return &Scraper{
		cfg:        cfg,
		classifier: classifier,
		analyzer:   analyzer,
		logger:     logger,
		newFetcher: func(cfg Config, c *Classifier) (PageFetcher, error) {
			return NewRodFetcher(cfg, c)
		},
	}, nil
}

// NormalizeSeedURL canonicalizes a user-supplied URL and returns it together
// with its host. A missing scheme defaults to https. Returns ErrInvalidURL
// when no plausible domain is present.
func NormalizeSeedURL(rawURL string) (string, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", "", ErrInvalidURL
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", ErrInvalidURL
	}
	if parsed.Host == "" || !strings.Contains(parsed.Host, ".") {
		return "", "", ErrInvalidURL
	}
	return strings.TrimRight(parsed.String(), "/"), parsed.Host, nil
}

// pageOutcome is what one worker brings back from a single page. Workers
// never touch shared state; outcomes are folded in between batches.
type pageOutcome struct {
	url        string
	data       *PageData
	extraction *PageExtraction
	harvest    bool
	duplicate  bool
	err        error
}

// session is the single-goroutine crawl state. Only the batch fold mutates
// it, so no locking is needed.
type session struct {
	visited     map[string]bool
	frontier    []string
	contents    []string
	extractions []*PageExtraction
	socialLinks map[string]string
	budget      int
	dispatched  int
	analyzed    int
	early       bool
}

// Scrape crawls the site at rawURL and returns the compiled profile with
// crawl metadata. maxPages overrides the configured page limit when positive;
// zero or negative keeps the default. The result artifact is also written to
// the results directory; a write failure there is logged but not fatal.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, maxPages int) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape panicked: %v", r)
			result = nil
		}
		if err != nil {
			scrapeSessionsTotal.WithLabelValues("error").Inc()
		} else {
			scrapeSessionsTotal.WithLabelValues("success").Inc()
		}
	}()

	seedURL, baseDomain, err := NormalizeSeedURL(rawURL)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}

	start := time.Now()
	defer func() {
		scrapeSessionDuration.Observe(time.Since(start).Seconds())
	}()

	fetcher, err := s.newFetcher(s.cfg, s.classifier)
	if err != nil {
		return nil, err
	}
	defer fetcher.Close()

	s.logger.WithFields(logrus.Fields{
		"url":       seedURL,
		"max_pages": maxPages,
	}).Info("Starting crawl session")

	sess := &session{
		visited:     make(map[string]bool),
		frontier:    []string{seedURL},
		socialLinks: make(map[string]string),
		budget:      maxPages,
	}

	for len(sess.frontier) > 0 && sess.dispatched < sess.budget {
		if ctx.Err() != nil {
			break
		}
		batch := s.takeBatch(sess)
		if len(batch) == 0 {
			break
		}
		outcomes := s.runBatch(ctx, fetcher, batch, append([]string(nil), sess.contents...))
		s.foldBatch(sess, outcomes)

		if !s.cfg.DisableEarlyTermination && sufficientData(s.cfg, sess.extractions, sess.socialLinks) {
			sess.early = true
			s.logger.WithField("pages_analyzed", sess.analyzed).Info("Early termination: profile data sufficient")
			break
		}
	}

	profile, err := CompileProfile(sess.extractions, sess.socialLinks, baseDomain)
	if err != nil {
		return nil, err
	}

	result = &Result{
		Metadata: Metadata{
			URL:              seedURL,
			BaseDomain:       baseDomain,
			PagesScraped:     sess.dispatched,
			PagesAnalyzed:    sess.analyzed,
			EarlyTermination: sess.early,
			ScrapeTime:       start.UTC(),
			ProcessingTime:   time.Since(start).Seconds(),
		},
		Profile: profile,
	}

	if filename, writeErr := s.writeResult(result); writeErr != nil {
		s.logger.WithError(writeErr).Warn("Failed to write result artifact")
	} else {
		result.Metadata.Filename = filename
	}

	s.logger.WithFields(logrus.Fields{
		"base_domain":    baseDomain,
		"pages_scraped":  sess.dispatched,
		"pages_analyzed": sess.analyzed,
		"offerings":      len(profile.Offerings),
		"duration":       time.Since(start).Round(time.Millisecond).String(),
	}).Info("Crawl session complete")

	return result, nil
}

// takeBatch pops up to MaxConcurrent unvisited URLs from the frontier,
// priority-sorted, without exceeding the session page budget. Popped URLs
// are marked visited immediately so the frontier never re-dispatches them.
func (s *Scraper) takeBatch(sess *session) []pageOutcome {
	size := s.cfg.MaxConcurrent
	if remaining := sess.budget - sess.dispatched; remaining < size {
		size = remaining
	}

	sess.frontier = s.classifier.SortByPriority(sess.frontier)

	var batch []pageOutcome
	var rest []string
	for _, u := range sess.frontier {
		if sess.visited[u] {
			continue
		}
		if len(batch) >= size {
			rest = append(rest, u)
			continue
		}
		sess.visited[u] = true
		batch = append(batch, pageOutcome{
			url:     u,
			harvest: sess.dispatched < s.cfg.LinkHarvestPages,
		})
		sess.dispatched++
	}
	sess.frontier = rest
	return batch
}

// runBatch fetches and analyzes the batch concurrently. Each worker writes
// only its own outcome slot and reads priorContents, a snapshot of the
// session contents taken before the batch launched, so the group needs no
// locks.
func (s *Scraper) runBatch(ctx context.Context, fetcher PageFetcher, batch []pageOutcome, priorContents []string) []pageOutcome {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i := range batch {
		i := i
		g.Go(func() error {
			s.processPage(gctx, fetcher, &batch[i], priorContents)
			return nil
		})
	}
	_ = g.Wait()
	return batch
}

func (s *Scraper) processPage(ctx context.Context, fetcher PageFetcher, outcome *pageOutcome, priorContents []string) {
	fetchStart := time.Now()
	data, err := fetcher.Fetch(ctx, outcome.url)
	pageFetchDuration.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		outcome.err = err
		return
	}
	outcome.data = data

	// Near-duplicates of already-kept pages are dropped here, before the
	// completion call, so a duplicate never costs an analysis.
	for _, prior := range priorContents {
		if s.classifier.Similarity(prior, data.Content) > s.cfg.SimilarityThreshold {
			outcome.duplicate = true
			return
		}
	}

	analysisStart := time.Now()
	extraction, err := s.analyzer.Analyze(ctx, data.URL, data.Content)
	pageAnalysisDuration.Observe(time.Since(analysisStart).Seconds())
	if err != nil {
		outcome.err = err
		return
	}
	extraction.DirectPricing = data.DirectPricing
	outcome.extraction = extraction
}

// foldBatch merges worker outcomes into the session: duplicate pages are
// dropped by content similarity, social links merge first-found, and
// harvested links extend the frontier.
func (s *Scraper) foldBatch(sess *session, outcomes []pageOutcome) {
	for i := range outcomes {
		outcome := &outcomes[i]
		if outcome.err != nil {
			scrapePagesTotal.WithLabelValues("failed").Inc()
			s.logger.WithFields(logrus.Fields{
				"url": outcome.url,
			}).WithError(outcome.err).Warn("Page skipped")
			continue
		}

		// Workers compared against a pre-batch snapshot; re-check here to
		// catch duplicates of pages kept earlier in this same batch.
		if !outcome.duplicate {
			for _, prior := range sess.contents {
				if s.classifier.Similarity(prior, outcome.data.Content) > s.cfg.SimilarityThreshold {
					outcome.duplicate = true
					break
				}
			}
		}
		if outcome.duplicate {
			scrapePagesTotal.WithLabelValues("duplicate").Inc()
			s.logger.WithField("url", outcome.url).Debug("Page rejected as near-duplicate")
			continue
		}

		scrapePagesTotal.WithLabelValues("analyzed").Inc()
		sess.contents = append(sess.contents, outcome.data.Content)
		sess.extractions = append(sess.extractions, outcome.extraction)
		sess.analyzed++

		for platform, link := range outcome.data.SocialLinks {
			if _, ok := sess.socialLinks[platform]; !ok {
				sess.socialLinks[platform] = link
			}
		}

		if outcome.harvest {
			for _, link := range outcome.data.InternalLinks {
				if !sess.visited[link] {
					sess.frontier = append(sess.frontier, link)
					linksDiscoveredTotal.Inc()
				}
			}
		}
	}
}

// sufficientData reports whether the accumulated extractions already cover
// every profile dimension well enough to stop crawling early.
func sufficientData(cfg Config, extractions []*PageExtraction, socialLinks map[string]string) bool {
	if len(extractions) < 5 {
		return false
	}

	var hasName, hasDescription, hasEmail, hasPhone bool
	offerings := make(map[string]string) // lowercased name -> pricing
	methods := map[string]bool{}
	plans := map[string]bool{}
	faqs := map[string]bool{}
	valueProps := map[string]bool{}
	audience := map[string]bool{}

	for _, ex := range extractions {
		hasName = hasName || ex.BusinessName != ""
		hasDescription = hasDescription || ex.ShortDescription != ""
		hasEmail = hasEmail || ex.Contact.Email != ""
		hasPhone = hasPhone || ex.Contact.Phone != ""
		for _, o := range ex.Offerings {
			key := strings.ToLower(strings.TrimSpace(o.Name))
			if key == "" {
				continue
			}
			if existing, ok := offerings[key]; !ok || (existing == "" && o.Pricing != "") {
				offerings[key] = o.Pricing
			}
		}
		for _, m := range ex.Payment.Methods {
			methods[strings.ToLower(strings.TrimSpace(m))] = true
		}
		for _, p := range ex.Payment.Plans {
			plans[strings.ToLower(strings.TrimSpace(p))] = true
		}
		for _, f := range ex.FAQs {
			faqs[strings.ToLower(strings.TrimSpace(f.Question))] = true
		}
		for _, v := range ex.ValueProps {
			valueProps[strings.ToLower(strings.TrimSpace(v))] = true
		}
		for _, a := range ex.Audience {
			audience[strings.ToLower(strings.TrimSpace(a))] = true
		}
	}

	if !hasName || !hasDescription {
		return false
	}
	if len(offerings) < cfg.MinProducts+cfg.MinServices {
		return false
	}
	priced := 0
	for _, pricing := range offerings {
		if pricing != "" {
			priced++
		}
	}
	if priced*2 < len(offerings) {
		return false
	}
	if len(methods) < 2 || len(plans) < 2 {
		return false
	}
	if len(faqs) < cfg.MinFAQs {
		return false
	}
	if len(valueProps) < 3 || len(audience) < 3 {
		return false
	}
	if !hasEmail && !hasPhone {
		return false
	}
	return len(socialLinks) >= 2
}

// writeResult persists the crawl artifact as pretty-printed JSON under the
// results directory and returns the filename.
func (s *Scraper) writeResult(result *Result) (string, error) {
	if err := os.MkdirAll(s.cfg.ResultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	safeDomain := unsafeFilenameChars.ReplaceAllString(result.Metadata.BaseDomain, "_")
	filename := fmt.Sprintf("multi_page_scrape_%s_%s.json",
		safeDomain, result.Metadata.ScrapeTime.Format("20060102_150405"))

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cfg.ResultsDir, filename), payload, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return filename, nil
}
