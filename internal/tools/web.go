package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	braveEndpoint      = "https://api.search.brave.com/res/v1/web/search"
	duckduckgoEndpoint = "https://api.duckduckgo.com/"
)

var (
	scriptRe     = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	tagRe        = regexp.MustCompile(`(?is)<[^>]+>`)
	linkRe       = regexp.MustCompile(`(?is)<a\s+[^>]*href=["']([^"']+)["'][^>]*>([\s\S]*?)</a>`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	breaksRe     = regexp.MustCompile(`\n{3,}`)
)

func stripTags(text string) string {
	text = scriptRe.ReplaceAllString(text, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, "")
	return html.UnescapeString(text)
}

func normalizeText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = breaksRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got '%s'", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing domain")
	}
	return nil
}

type searchResult struct {
	title   string
	url     string
	snippet string
}

// WebSearchTool searches the web via Brave when an API key is configured,
// falling back to the keyless DuckDuckGo instant-answer API.
type WebSearchTool struct {
	client      *http.Client
	braveAPIKey string
	maxResults  int
}

// NewWebSearchTool creates a WebSearchTool.
func NewWebSearchTool(braveAPIKey string, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{
		client:      &http.Client{Timeout: 30 * time.Second},
		braveAPIKey: strings.TrimSpace(braveAPIKey),
		maxResults:  maxResults,
	}
}

// DefaultResults reports the result count used when the caller omits one.
func (t *WebSearchTool) DefaultResults() int { return t.maxResults }

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web. Returns titles, URLs, and snippets."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"count": map[string]any{"type": "integer", "description": "Results (1-10)", "minimum": 1, "maximum": 10},
		},
		"required": []any{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query := GetString(params, "query", "")
	if query == "" {
		return "Error: query is required", nil
	}
	n := GetInt(params, "count", t.maxResults)
	if n < 1 {
		n = 1
	} else if n > 10 {
		n = 10
	}

	var note string
	if t.braveAPIKey != "" {
		results, err := t.searchBrave(ctx, query, n)
		switch {
		case err == nil && len(results) > 0:
			return formatResults(query, "Brave", results, n), nil
		case err == nil:
			note = "Brave returned no results, switched to DuckDuckGo fallback."
		default:
			note = fmt.Sprintf("Brave search failed (%v), switched to DuckDuckGo fallback.", err)
		}
	} else {
		note = "BRAVE_API_KEY not configured, using keyless DuckDuckGo fallback."
	}

	results, err := t.searchDuckDuckGo(ctx, query, n)
	if err != nil {
		return fmt.Sprintf("%s\n\nSearch fallback failed: %v\nTip: use web_fetch with a concrete URL for direct page access.", note, err), nil
	}
	return note + "\n\n" + formatResults(query, "DuckDuckGo fallback", results, n), nil
}

func formatResults(query, provider string, results []searchResult, limit int) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for: %s (%s)", query, provider)
	}
	lines := []string{fmt.Sprintf("Results for: %s (%s)\n", query, provider)}
	for idx, r := range results {
		if idx >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", idx+1, r.title, r.url))
		if r.snippet != "" {
			lines = append(lines, "   "+r.snippet)
		}
	}
	return strings.Join(lines, "\n")
}

func (t *WebSearchTool) searchBrave(ctx context.Context, query string, n int) ([]searchResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", braveEndpoint, url.QueryEscape(query), n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.braveAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var out []searchResult
	for _, item := range payload.Web.Results {
		title := strings.TrimSpace(item.Title)
		u := strings.TrimSpace(item.URL)
		if title != "" && u != "" {
			out = append(out, searchResult{title, u, strings.TrimSpace(item.Description)})
		}
	}
	return out, nil
}

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string, n int) ([]searchResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1&no_redirect=1",
		duckduckgoEndpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo API returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var out []searchResult
	abstractText := strings.TrimSpace(stringField(payload, "AbstractText"))
	abstractURL := strings.TrimSpace(stringField(payload, "AbstractURL"))
	heading := strings.TrimSpace(stringField(payload, "Heading"))
	if abstractText != "" && abstractURL != "" {
		title := heading
		if title == "" {
			title = strings.TrimSpace(strings.SplitN(abstractText, ".", 2)[0])
		}
		pushResult(&out, title, abstractURL, abstractText)
	}

	if topics, ok := payload["RelatedTopics"].([]any); ok {
		collectRelatedTopics(topics, &out)
	}

	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func pushResult(out *[]searchResult, title, u, snippet string) {
	title = strings.TrimSpace(title)
	u = strings.TrimSpace(u)
	snippet = strings.TrimSpace(snippet)
	if title == "" || u == "" {
		return
	}
	for _, existing := range *out {
		if existing.url == u {
			return
		}
	}
	*out = append(*out, searchResult{title, u, snippet})
}

func collectRelatedTopics(topics []any, out *[]searchResult) {
	for _, raw := range topics {
		topic, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if nested, ok := topic["Topics"].([]any); ok {
			collectRelatedTopics(nested, out)
			continue
		}
		text := strings.TrimSpace(stringField(topic, "Text"))
		u := strings.TrimSpace(stringField(topic, "FirstURL"))
		if text == "" || u == "" {
			continue
		}
		title := strings.SplitN(text, " - ", 2)[0]
		pushResult(out, title, u, text)
	}
}

// WebFetchTool fetches a URL and extracts readable content.
type WebFetchTool struct {
	client   *http.Client
	maxChars int
}

// NewWebFetchTool creates a WebFetchTool with a default content cap.
func NewWebFetchTool(maxChars int) *WebFetchTool {
	if maxChars < 100 {
		maxChars = 50000
	}
	return &WebFetchTool{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxChars: maxChars,
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch URL and extract readable content (HTML -> markdown/text)."
}

func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":         map[string]any{"type": "string", "description": "URL to fetch"},
			"extractMode": map[string]any{"type": "string", "enum": []any{"markdown", "text"}},
			"maxChars":    map[string]any{"type": "integer", "minimum": 100},
		},
		"required": []any{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	rawURL := GetString(params, "url", "")
	if rawURL == "" {
		return "Error: url is required", nil
	}
	if err := validateURL(rawURL); err != nil {
		payload, _ := json.Marshal(map[string]any{
			"error": fmt.Sprintf("URL validation failed: %v", err),
			"url":   rawURL,
		})
		return string(payload), nil
	}

	extractMode := GetString(params, "extractMode", "markdown")
	maxChars := GetInt(params, "maxChars", t.maxChars)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Sprintf("Error building request: %v", err), nil
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), nil
	}
	body := string(bodyBytes)
	contentType := resp.Header.Get("Content-Type")

	head := strings.ToLower(body[:min(len(body), 256)])
	var text, extractor string
	switch {
	case strings.Contains(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(bodyBytes, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				text = string(pretty)
			}
		}
		if text == "" {
			text = body
		}
		extractor = "json"
	case strings.Contains(contentType, "text/html"),
		strings.Contains(head, "<html"),
		strings.Contains(head, "<!doctype"):
		if extractMode == "text" {
			text = normalizeText(stripTags(body))
		} else {
			text = htmlToMarkdown(body)
		}
		extractor = "html"
	default:
		text = body
		extractor = "raw"
	}

	truncated := len(text) > maxChars
	if truncated {
		text = text[:maxChars]
	}

	payload, err := json.Marshal(map[string]any{
		"url":       rawURL,
		"finalUrl":  resp.Request.URL.String(),
		"status":    resp.StatusCode,
		"extractor": extractor,
		"truncated": truncated,
		"length":    len(text),
		"text":      text,
	})
	if err != nil {
		return fmt.Sprintf("Error encoding result: %v", err), nil
	}
	return string(payload), nil
}

func htmlToMarkdown(raw string) string {
	text := linkRe.ReplaceAllStringFunc(raw, func(match string) string {
		caps := linkRe.FindStringSubmatch(match)
		if len(caps) != 3 {
			return match
		}
		return fmt.Sprintf("[%s](%s)", stripTags(caps[2]), caps[1])
	})
	return normalizeText(stripTags(text))
}
