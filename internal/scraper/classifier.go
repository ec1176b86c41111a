package scraper

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Classifier decides which URLs are worth a browser tab and how alike two
// pages are. It is pure: no I/O, safe for concurrent use.
type Classifier struct {
	priority []*regexp.Regexp
	skip     []*regexp.Regexp
}

func NewClassifier(cfg Config) (*Classifier, error) {
	c := &Classifier{}
	for _, pattern := range cfg.SkipPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		c.skip = append(c.skip, re)
	}
	for _, pattern := range cfg.PriorityPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		c.priority = append(c.priority, re)
	}
	return c, nil
}

// ShouldProcess reports whether a URL's path is worth crawling.
// Skip patterns veto, the root path always passes, and when priority
// patterns exist only matching paths pass.
func (c *Classifier) ShouldProcess(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := parsed.Path

	for _, re := range c.skip {
		if re.MatchString(path) {
			return false
		}
	}
	if len(c.priority) == 0 {
		return true
	}
	if path == "/" || path == "" {
		return true
	}
	return c.isPriority(path)
}

func (c *Classifier) isPriority(path string) bool {
	for _, re := range c.priority {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Similarity returns the Jaccard index of the two texts' word sets,
// case-folded. Empty input on either side yields 0.
func (c *Classifier) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// SortByPriority returns the URLs with priority-pattern matches first.
// The sort is stable so relative discovery order is preserved within
// each group.
func (c *Classifier) SortByPriority(urls []string) []string {
	sorted := make([]string, len(urls))
	copy(sorted, urls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return c.urlRank(sorted[i]) < c.urlRank(sorted[j])
	})
	return sorted
}

func (c *Classifier) urlRank(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	if c.isPriority(parsed.Path) {
		return 0
	}
	return 1
}
