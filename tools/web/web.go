// Package web implements aidra.WebAdapter: search via the Brave Search API
// and readable-content extraction via go-readability.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	aidra "github.com/nevindra/aidra"
)

// Adapter is an aidra.WebAdapter backed by the Brave Search API for
// queries and direct HTTP fetch + readability extraction for URLs.
type Adapter struct {
	client      *http.Client
	braveAPIKey string
}

// New creates an Adapter. braveAPIKey may be empty in which case Search
// always returns an error; Fetch works regardless.
func New(braveAPIKey string) *Adapter {
	return &Adapter{client: &http.Client{Timeout: 15 * time.Second}, braveAPIKey: braveAPIKey}
}

var _ aidra.WebAdapter = (*Adapter)(nil)

// Search queries the Brave Search API and returns up to 8 ranked results.
func (a *Adapter) Search(ctx context.Context, query string) ([]aidra.SearchResult, error) {
	if a.braveAPIKey == "" {
		return nil, fmt.Errorf("web: search: no Brave API key configured")
	}

	u := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=8", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("web: search: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", a.braveAPIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("web: brave search returned %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("web: decode brave response: %w", err)
	}

	results := make([]aidra.SearchResult, 0, len(data.Web.Results))
	for _, r := range data.Web.Results {
		results = append(results, aidra.SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

// Fetch downloads rawURL and extracts its readable text. Callers must have
// already passed rawURL through aidra.IsPublicURL; Fetch does not
// re-validate it.
func (a *Adapter) Fetch(ctx context.Context, rawURL string) (aidra.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return aidra.FetchResult{}, fmt.Errorf("web: invalid url %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aidra/1.0)")

	resp, err := a.client.Do(req)
	if err != nil {
		return aidra.FetchResult{}, fmt.Errorf("web: fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return aidra.FetchResult{}, fmt.Errorf("web: fetch %q: http %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return aidra.FetchResult{}, fmt.Errorf("web: read body of %q: %w", rawURL, err)
	}
	html := string(body)

	parsedURL, _ := url.Parse(rawURL)
	if article, err := readability.FromReader(strings.NewReader(html), parsedURL); err == nil && article.TextContent != "" {
		return aidra.FetchResult{URL: rawURL, Title: article.Title, Content: strings.TrimSpace(article.TextContent)}, nil
	}

	return aidra.FetchResult{URL: rawURL, Content: stripHTML(html)}, nil
}

var (
	anyTagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// stripHTML is a last-resort fallback when readability extraction fails:
// drop script/style blocks, strip remaining tags, collapse whitespace.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}
	html = anyTagRe.ReplaceAllString(html, " ")
	html = whitespaceRe.ReplaceAllString(html, " ")
	return strings.TrimSpace(html)
}
