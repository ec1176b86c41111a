package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"barker/pkg/llm"
)

// Analyzer turns raw page text into a structured extraction.
type Analyzer interface {
	Analyze(ctx context.Context, pageURL, content string) (*PageExtraction, error)
}

// LLMAnalyzer extracts business facts from page text via a chat completion
// with a fixed JSON output schema.
type LLMAnalyzer struct {
	provider llm.Provider
	cfg      Config
}

func NewLLMAnalyzer(provider llm.Provider, cfg Config) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider, cfg: cfg}
}

const analysisSystemPrompt = `You are a business analyst extracting structured facts from a single web page.
Respond with ONLY a JSON object matching this schema, no prose and no markdown:
{
  "business_name": "string or null",
  "tagline_slogan": "string or null",
  "short_description": "string or null",
  "offerings": [{"type": "product|service|subscription", "name": "string", "description": "string", "attributes": ["string"], "pricing": "string or null"}],
  "payment_information": {"payment_methods": ["string"], "payment_plans": ["string"], "pricing_tiers": ["string"], "free_offers": "string or null"},
  "value_propositions": ["string"],
  "target_audience": ["string"],
  "support_channels": ["string"],
  "contact_info": {"email": "string or null", "phone": "string or null", "address": "string or null", "contact_form_mention": false},
  "faqs": [{"question": "string", "answer": "string"}],
  "page_topic": "string"
}
Only include facts stated on the page. Use null or empty arrays for anything absent.`

// Analyze sends the page text to the model and decodes the response into the
// extraction schema. Content beyond the configured limit is truncated before
// prompting. Decode failures come back as an AnalysisError carrying the raw
// model output.
func (a *LLMAnalyzer) Analyze(ctx context.Context, pageURL, content string) (*PageExtraction, error) {
	content = truncateContent(content, a.cfg.MaxContentLength)

	messages := []llm.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Page URL: %s\n\nPage content:\n%s", pageURL, content)},
	}

	output, err := a.complete(ctx, messages)
	if err != nil {
		return nil, &AnalysisError{URL: pageURL, Err: err}
	}

	extraction, err := decodeExtraction(output)
	if err != nil {
		return nil, &AnalysisError{URL: pageURL, RawOutput: output, Err: err}
	}
	extraction.SourceURL = pageURL
	return extraction, nil
}

// truncateContent caps content at limit bytes, backing up to the nearest
// rune boundary so a multi-byte character is never split.
func truncateContent(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// complete runs a completion and drains the stream into a single string.
func (a *LLMAnalyzer) complete(ctx context.Context, messages []llm.Message) (string, error) {
	stream, err := a.provider.Complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		builder.WriteString(chunk.Content)
	}
	return builder.String(), nil
}

// legacyExtraction accepts older model output that split offerings into
// separate products and services arrays.
type legacyExtraction struct {
	PageExtraction
	Products []Offering `json:"products"`
	Services []Offering `json:"services"`
}

// decodeExtraction parses model output into the extraction schema. Three
// attempts, each more forgiving: the raw text as JSON, the contents of a
// fenced code block, and finally the outermost brace-delimited span.
func decodeExtraction(output string) (*PageExtraction, error) {
	candidates := []string{strings.TrimSpace(output)}
	if fenced := extractFencedBlock(output); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := extractBraceSpan(output); span != "" {
		candidates = append(candidates, span)
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var legacy legacyExtraction
		if err := json.Unmarshal([]byte(wrapListScalars(candidate)), &legacy); err != nil {
			lastErr = err
			continue
		}
		return normalizeExtraction(&legacy), nil
	}
	if lastErr == nil {
		lastErr = errors.New("empty model output")
	}
	return nil, fmt.Errorf("decode extraction: %w", lastErr)
}

// listFields are the extraction fields that must decode as arrays. Models
// occasionally emit a single value for one of them; wrapListScalars turns
// that into a one-element array instead of failing the whole decode.
var listFields = []string{
	"offerings", "value_propositions", "target_audience",
	"support_channels", "faqs", "products", "services",
}

func wrapListScalars(candidate string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return candidate
	}
	changed := false
	for _, key := range listFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		wrapped := make(json.RawMessage, 0, len(trimmed)+2)
		wrapped = append(wrapped, '[')
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, ']')
		fields[key] = wrapped
		changed = true
	}
	if !changed {
		return candidate
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return candidate
	}
	return string(out)
}

// extractFencedBlock returns the body of the first markdown code fence,
// with an optional language tag stripped.
func extractFencedBlock(output string) string {
	start := strings.Index(output, "```")
	if start == -1 {
		return ""
	}
	rest := output[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline != -1 {
		firstLine := strings.TrimSpace(rest[:newline])
		if firstLine == "json" || firstLine == "" {
			rest = rest[newline+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// extractBraceSpan returns the text from the first '{' to the last '}'.
func extractBraceSpan(output string) string {
	start := strings.IndexByte(output, '{')
	end := strings.LastIndexByte(output, '}')
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return output[start : end+1]
}

// normalizeExtraction folds legacy products and services arrays into the
// unified offerings list and guarantees non-nil slices. The legacy arrays
// count only when the output carried no offerings list of its own; folding
// both would double up every offering on mixed output.
func normalizeExtraction(legacy *legacyExtraction) *PageExtraction {
	extraction := legacy.PageExtraction
	if len(extraction.Offerings) == 0 {
		for _, p := range legacy.Products {
			if p.Type == "" {
				p.Type = "product"
			}
			extraction.Offerings = append(extraction.Offerings, p)
		}
		for _, s := range legacy.Services {
			if s.Type == "" {
				s.Type = "service"
			}
			extraction.Offerings = append(extraction.Offerings, s)
		}
	}
	if extraction.Offerings == nil {
		extraction.Offerings = []Offering{}
	}
	if extraction.ValueProps == nil {
		extraction.ValueProps = []string{}
	}
	if extraction.Audience == nil {
		extraction.Audience = []string{}
	}
	if extraction.SupportChannels == nil {
		extraction.SupportChannels = []string{}
	}
	if extraction.FAQs == nil {
		extraction.FAQs = []FAQ{}
	}
	return &extraction
}
