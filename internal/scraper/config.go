package scraper

import (
	"time"

	"barker/pkg/config"
)

// Config holds every crawl tunable. Build one with DefaultConfig and adjust;
// the zero value is not usable.
type Config struct {
	BlockResources   bool
	ContentSelectors []string
	NavSelectors     []string
	CardSelectors    []string

	MaxPages         int
	MaxConcurrent    int
	MaxContentLength int
	LinkHarvestPages int

	PageLoadTimeout    time.Duration
	ContentWaitTimeout time.Duration

	PriorityPatterns []string
	SkipPatterns     []string

	SimilarityThreshold float64

	MinProducts int
	MinServices int
	MinFAQs     int

	// DisableEarlyTermination keeps the crawl running to MaxPages even when
	// the sufficiency check would allow stopping. On by default: the
	// completeness gain has proven worth the extra pages.
	DisableEarlyTermination bool

	ResultsDir string
}

// DefaultConfig returns the crawl defaults.
func DefaultConfig() Config {
	return Config{
		BlockResources: true,
		ContentSelectors: []string{
			"main", "article", ".content", "#content", ".main-content", "#main-content", "body",
		},
		NavSelectors: []string{
			"header", "nav", ".nav", "#nav", ".navigation", "#navigation",
			"footer", ".footer", "#footer", ".main-nav", ".primary-nav", ".menu", "#menu",
		},
		CardSelectors: []string{
			".course-card", ".product-card", ".service-card",
			".card", ".grid-item", ".course-item", ".program-card",
			"[class*='course']", "[class*='bootcamp']",
		},
		MaxPages:           15,
		MaxConcurrent:      5,
		MaxContentLength:   10000,
		LinkHarvestPages:   3,
		PageLoadTimeout:    20 * time.Second,
		ContentWaitTimeout: 2 * time.Second,
		PriorityPatterns: []string{
			`^/$`, `/about`, `/contact`, `/shop`, `/store`, `/products?`,
			`/services?`, `/pricing`, `/plans`, `/faq`,
		},
		SkipPatterns: []string{
			`/blog/[^/]+$`, `/news/[^/]+$`, `/article`, `/post`, `/terms`,
			`/privacy`, `/cookies?`, `/legal`, `/policy`, `/login`, `/signup`,
			`/register`, `/cart`, `/checkout`, `/account`,
		},
		SimilarityThreshold:     0.7,
		MinProducts:             2,
		MinServices:             1,
		MinFAQs:                 3,
		DisableEarlyTermination: true,
		ResultsDir:              "results",
	}
}

// LoadConfig builds a Config from the environment on top of the defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxPages = config.GetEnvInt("SCRAPER_MAX_PAGES", cfg.MaxPages)
	cfg.MaxConcurrent = config.GetEnvInt("SCRAPER_MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.MaxContentLength = config.GetEnvInt("SCRAPER_MAX_CONTENT_LENGTH", cfg.MaxContentLength)
	cfg.LinkHarvestPages = config.GetEnvInt("SCRAPER_LINK_HARVEST_PAGES", cfg.LinkHarvestPages)
	cfg.BlockResources = config.GetEnvBool("SCRAPER_BLOCK_RESOURCES", cfg.BlockResources)
	cfg.DisableEarlyTermination = config.GetEnvBool("SCRAPER_DISABLE_EARLY_TERMINATION", cfg.DisableEarlyTermination)
	cfg.ResultsDir = config.GetEnv("SCRAPER_RESULTS_DIR", cfg.ResultsDir)
	if ms := config.GetEnvInt("SCRAPER_PAGE_LOAD_TIMEOUT_MS", 0); ms > 0 {
		cfg.PageLoadTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms := config.GetEnvInt("SCRAPER_CONTENT_WAIT_TIMEOUT_MS", 0); ms > 0 {
		cfg.ContentWaitTimeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}
