package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// PageData is everything a single rendered page yields.
type PageData struct {
	URL           string
	Content       string
	InternalLinks []string
	SocialLinks   map[string]string
	DirectPricing map[string]string
}

// PageFetcher loads a page in a browser and extracts its text, links,
// social profiles, and DOM-level pricing.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*PageData, error)
	Close()
}

// blockedResourceTypes lists network resource types the fetcher aborts to
// keep page loads fast. Text content is all the analyzer needs.
var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeScript,
	proto.NetworkResourceTypeTextTrack,
	proto.NetworkResourceTypeXHR,
	proto.NetworkResourceTypeFetch,
	proto.NetworkResourceTypeEventSource,
	proto.NetworkResourceTypeWebSocket,
	proto.NetworkResourceTypeManifest,
	proto.NetworkResourceTypeOther,
}

var socialSelectors = []struct {
	platform string
	selector string
}{
	{"linkedin", `a[href*="linkedin.com/company/"], a[href*="linkedin.com/in/"]`},
	{"twitter", `a[href*="twitter.com/"], a[href*="x.com/"]`},
	{"facebook", `a[href*="facebook.com/"]`},
	{"instagram", `a[href*="instagram.com/"]`},
	{"youtube", `a[href*="youtube.com/channel/"], a[href*="youtube.com/user/"], a[href*="youtube.com/@"]`},
}

var priceSelectors = []string{
	"[class*='price']", "[class*='pricing']", "[class*='cost']", "[class*='fee']",
	"[class*='payment']", "[class*='plan']", "[id*='price']", "[id*='pricing']",
	".price", ".pricing", ".cost", ".fee", ".plan-price", ".amount", ".price-value", ".product-price",
}

// pricePattern matches a currency symbol (ZAR, USD, EUR, GBP) followed by an
// amount with optional thousands and decimal separators.
var pricePattern = regexp.MustCompile(`(R|\$|€|£)\s?(\d{1,3}(?:[,.]\d{3})*(?:[,.]\d{2})?|\d+)`)

var skipHrefPrefixes = []string{"#", "javascript:", "mailto:", "tel:", "sms:", "whatsapp:"}

// RodFetcher renders pages via a headless Chromium instance managed by Rod.
// One browser serves a whole crawl session; each Fetch opens an isolated
// stealth tab. Create with NewRodFetcher; call Close when the session ends.
type RodFetcher struct {
	browser    *rod.Browser
	cfg        Config
	classifier *Classifier
	tabSem     chan struct{}
}

// NewRodFetcher launches a headless Chromium process via Rod's launcher.
// Returns a BrowserError if Chrome/Chromium cannot be started.
func NewRodFetcher(cfg Config, classifier *Classifier) (*RodFetcher, error) {
	u, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, &BrowserError{Err: fmt.Errorf("launch headless browser: %w", err)}
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, &BrowserError{Err: fmt.Errorf("connect to headless browser: %w", err)}
	}

	tabs := cfg.MaxConcurrent
	if tabs <= 0 {
		tabs = 1
	}
	return &RodFetcher{
		browser:    browser,
		cfg:        cfg,
		classifier: classifier,
		tabSem:     make(chan struct{}, tabs),
	}, nil
}

// Fetch navigates to pageURL in a fresh tab and extracts text, internal
// links, social links, and visible pricing. Failed loads return a LoadError.
func (f *RodFetcher) Fetch(ctx context.Context, pageURL string) (*PageData, error) {
	select {
	case f.tabSem <- struct{}{}:
		defer func() { <-f.tabSem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	page, err := stealth.Page(f.browser)
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	loadCtx, cancel := context.WithTimeout(ctx, f.cfg.PageLoadTimeout)
	defer cancel()
	page = page.Context(loadCtx)

	if f.cfg.BlockResources {
		router := page.HijackRequests()
		for _, rt := range blockedResourceTypes {
			rt := rt
			_ = router.Add("*", rt, func(h *rod.Hijack) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			})
		}
		go router.Run()
		defer router.MustStop()
	}

	// Capture the main document response status so non-OK pages can be
	// reported as load failures instead of analyzed as content.
	var status int
	waitResp := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status = e.Response.Status
			return true
		}
		return false
	})

	if err := page.Navigate(pageURL); err != nil {
		return nil, &LoadError{URL: pageURL, Err: err}
	}
	waitResp()
	if loadCtx.Err() != nil {
		return nil, &LoadError{URL: pageURL, Err: loadCtx.Err()}
	}
	if status >= 400 {
		return nil, &LoadError{URL: pageURL, Status: status}
	}

	// Give dynamic content a short chance to settle; never fatal.
	_ = page.WaitStable(f.cfg.ContentWaitTimeout)

	currentURL := pageURL
	if info, infoErr := page.Info(); infoErr == nil && info.URL != "" {
		currentURL = info.URL
	}

	content, err := f.extractContent(page, currentURL)
	if err != nil {
		return nil, err
	}

	return &PageData{
		URL:           currentURL,
		Content:       content,
		InternalLinks: f.extractInternalLinks(page, currentURL),
		SocialLinks:   extractSocialLinks(page, currentURL),
		DirectPricing: extractPricing(page),
	}, nil
}

// Close shuts down the headless browser process.
func (f *RodFetcher) Close() {
	_ = f.browser.Close()
}

// extractContent returns the text of the first content selector that matches,
// falling back to a readability pass over the full rendered HTML.
func (f *RodFetcher) extractContent(page *rod.Page, pageURL string) (string, error) {
	for _, selector := range f.cfg.ContentSelectors {
		elements, err := page.Elements(selector)
		if err != nil || len(elements) == 0 {
			continue
		}
		var texts []string
		for _, el := range elements {
			text, textErr := el.Text()
			if textErr != nil {
				continue
			}
			if strings.TrimSpace(text) != "" {
				texts = append(texts, strings.TrimSpace(text))
			}
		}
		if joined := strings.TrimSpace(strings.Join(texts, "\n\n")); joined != "" {
			return joined, nil
		}
	}

	rawHTML, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("get HTML from %s: %w", pageURL, err)
	}
	return extractFallbackContent([]byte(rawHTML), pageURL), nil
}

// extractInternalLinks collects same-host links from navigation areas, then
// card grids, and finally content areas when navigation yields too few.
// Results are filtered by the classifier and sorted priority-first.
func (f *RodFetcher) extractInternalLinks(page *rod.Page, currentURL string) []string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	collect := func(selector string) {
		elements, elErr := page.Elements(selector)
		if elErr != nil {
			return
		}
		for _, el := range elements {
			href, attrErr := el.Attribute("href")
			if attrErr != nil || href == nil {
				continue
			}
			normalized, ok := normalizeInternalLink(base, *href)
			if !ok || seen[normalized] {
				continue
			}
			seen[normalized] = true
			links = append(links, normalized)
		}
	}

	for _, selector := range f.cfg.NavSelectors {
		collect(selector + " a")
	}
	for _, selector := range f.cfg.CardSelectors {
		collect(selector + " a")
	}
	if len(links) < 5 {
		for _, selector := range f.cfg.ContentSelectors {
			collect(selector + " a")
		}
	}

	var filtered []string
	for _, link := range links {
		if f.classifier.ShouldProcess(link) {
			filtered = append(filtered, link)
		}
	}
	return f.classifier.SortByPriority(filtered)
}

// normalizeInternalLink resolves href against base and returns a canonical
// same-host URL: fragment dropped, trailing slash trimmed, http(s) only.
func normalizeInternalLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	for _, prefix := range skipHrefPrefixes {
		if strings.HasPrefix(href, prefix) {
			return "", false
		}
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !sameHost(resolved.Host, base.Host) {
		return "", false
	}
	resolved.Fragment = ""
	return strings.TrimRight(resolved.String(), "/"), true
}

func sameHost(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}

// extractSocialLinks returns the first profile link found per platform.
func extractSocialLinks(page *rod.Page, currentURL string) map[string]string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}
	social := make(map[string]string)
	for _, entry := range socialSelectors {
		elements, elErr := page.Elements(entry.selector)
		if elErr != nil || len(elements) == 0 {
			continue
		}
		href, attrErr := elements[0].Attribute("href")
		if attrErr != nil || href == nil {
			continue
		}
		resolved, resolveErr := base.Parse(strings.TrimSpace(*href))
		if resolveErr != nil {
			continue
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" || resolved.Host == "" {
			continue
		}
		if _, ok := social[entry.platform]; !ok {
			social[entry.platform] = resolved.String()
		}
	}
	return social
}

// extractPricing scans price-flavored elements for currency amounts and
// associates each with the nearest heading. The longest price string wins
// per name: longer usually means more specific (currency plus cents).
func extractPricing(page *rod.Page) map[string]string {
	pricing := make(map[string]string)
	for _, selector := range priceSelectors {
		elements, err := page.Elements(selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			visible, visErr := el.Visible()
			if visErr != nil || !visible {
				continue
			}
			text, textErr := el.Text()
			if textErr != nil {
				continue
			}
			for _, match := range pricePattern.FindAllStringSubmatch(strings.TrimSpace(text), -1) {
				price := match[1] + match[2]
				name := nearestHeading(el)
				if existing, ok := pricing[name]; !ok || len(price) > len(existing) {
					pricing[name] = price
				}
			}
		}
	}
	return pricing
}

// nearestHeading walks up to three ancestor levels looking for a heading
// that names the priced offering.
func nearestHeading(el *rod.Element) string {
	const headingSelector = "h1, h2, .course-title, .product-title"
	current := el
	for i := 0; i < 3; i++ {
		parent, err := current.Parent()
		if err != nil {
			break
		}
		heading, headErr := parent.Sleeper(rod.NotFoundSleeper).Element(headingSelector)
		if headErr == nil {
			if text, textErr := heading.Text(); textErr == nil && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
		current = parent
	}
	return "Unknown"
}
