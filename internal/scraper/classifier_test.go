package scraper

import (
	"reflect"
	"testing"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultConfig())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestShouldProcess(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name string
		url  string
		want bool
	}{
		{"root passes", "https://example.com/", true},
		{"empty path passes", "https://example.com", true},
		{"priority pricing", "https://example.com/pricing", true},
		{"priority about", "https://example.com/about-us", true},
		{"priority products", "https://example.com/products/widget", true},
		{"skip login", "https://example.com/login", false},
		{"skip privacy", "https://example.com/privacy", false},
		{"skip blog post", "https://example.com/blog/my-first-post", false},
		{"skip checkout", "https://example.com/checkout", false},
		{"non-priority rejected", "https://example.com/careers", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.ShouldProcess(tc.url); got != tc.want {
				t.Errorf("ShouldProcess(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestShouldProcessSkipBeatsPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityPatterns = []string{`/account`}
	cfg.SkipPatterns = []string{`/account`}
	c, err := NewClassifier(cfg)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if c.ShouldProcess("https://example.com/account") {
		t.Error("skip pattern should veto a priority match")
	}
}

func TestShouldProcessNoPriorityPatterns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityPatterns = nil
	c, err := NewClassifier(cfg)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if !c.ShouldProcess("https://example.com/anything-goes") {
		t.Error("with no priority patterns every non-skipped path should pass")
	}
	if c.ShouldProcess("https://example.com/login") {
		t.Error("skip patterns still apply without priority patterns")
	}
}

func TestNewClassifierBadPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipPatterns = []string{`[`}
	if _, err := NewClassifier(cfg); err == nil {
		t.Fatal("expected error for invalid skip pattern")
	}
}

func TestSimilarity(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "welcome to our store", "welcome to our store", 1.0},
		{"disjoint", "alpha beta gamma", "delta epsilon zeta", 0.0},
		{"empty left", "", "some text", 0.0},
		{"empty right", "some text", "", 0.0},
		{"case insensitive", "Hello World", "hello world", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Similarity(tc.a, tc.b); got != tc.want {
				t.Errorf("Similarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSimilarityPartialOverlap(t *testing.T) {
	c := newTestClassifier(t)
	// Word sets {a b c d} and {c d e f}: intersection 2, union 6.
	got := c.Similarity("a b c d", "c d e f")
	want := 2.0 / 6.0
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Similarity = %v, want %v", got, want)
	}
}

func TestSortByPriority(t *testing.T) {
	c := newTestClassifier(t)

	urls := []string{
		"https://example.com/team",
		"https://example.com/pricing",
		"https://example.com/gallery",
		"https://example.com/services/consulting",
	}
	got := c.SortByPriority(urls)
	want := []string{
		"https://example.com/pricing",
		"https://example.com/services/consulting",
		"https://example.com/team",
		"https://example.com/gallery",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortByPriority = %v, want %v", got, want)
	}

	// Input order must be preserved.
	if urls[0] != "https://example.com/team" {
		t.Error("SortByPriority mutated its input")
	}
}
