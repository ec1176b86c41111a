package scraper

import (
	"bytes"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

const fallbackMinWords = 50

// extractFallbackContent recovers page text when no content selector matched.
// It tries go-readability first (Mozilla's Readability algorithm), converts
// the article to markdown for LLM-ready output, and falls back to a DOM
// walker that strips navigation and boilerplate.
func extractFallbackContent(rawHTML []byte, pageURL string) string {
	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(rawHTML), parsedURL)
	if err == nil && article.Node != nil {
		md, mdErr := htmltomarkdown.ConvertNode(article.Node)
		if mdErr == nil {
			text := normalizeContent(string(md))
			if len(strings.Fields(text)) >= fallbackMinWords {
				return text
			}
		}
		var buf bytes.Buffer
		_ = article.RenderText(&buf)
		text := normalizeContent(buf.String())
		if len(strings.Fields(text)) >= fallbackMinWords {
			return text
		}
	}

	node, parseErr := html.Parse(bytes.NewReader(rawHTML))
	if parseErr != nil {
		return ""
	}
	return extractReadableText(node)
}

// extractReadableText walks the DOM and collects visible text, skipping
// script, style, and structural noise elements.
func extractReadableText(node *html.Node) string {
	var builder strings.Builder

	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			switch tag {
			case "script", "style", "noscript", "nav", "footer", "header", "aside", "form", "template", "svg", "button", "iframe":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "article", "li", "pre", "blockquote":
				builder.WriteString("\n\n")
			}
			if hasAttr(n, "hidden") || attrVal(n, "aria-hidden") == "true" {
				return
			}
			role := attrVal(n, "role")
			if role == "complementary" || role == "banner" || role == "navigation" {
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				builder.WriteString(text)
				builder.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walker(child)
		}
	}
	walker(node)

	return normalizeContent(builder.String())
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// normalizeContent collapses runs of blank lines and trims each line.
func normalizeContent(content string) string {
	lines := strings.Split(content, "\n")
	var cleaned []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank {
				cleaned = append(cleaned, "")
				blank = true
			}
			continue
		}
		blank = false
		cleaned = append(cleaned, trimmed)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
