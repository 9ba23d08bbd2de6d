// Package wikipedia fetches page summaries used as entity context.
package wikipedia

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
)

// SnippetLimit caps the stored summary extract, in characters.
const SnippetLimit = 500

var whitespace = regexp.MustCompile(`\s+`)

// Summary is the REST summary payload.
type Summary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	Type        string `json:"type,omitempty"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// PageURL returns the desktop page link, if any.
func (s Summary) PageURL() string {
	return s.ContentURLs.Desktop.Page
}

// Snippet returns the extract truncated to SnippetLimit runes.
func (s Summary) Snippet() string {
	runes := []rune(s.Extract)
	if len(runes) > SnippetLimit {
		runes = runes[:SnippetLimit]
	}
	return string(runes)
}

// Client calls the page summary endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a client rooted at baseURL, for example
// https://en.wikipedia.org/api/rest_v1/page/summary/.
func NewClient(baseURL, userAgent string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, userAgent: userAgent, http: httpClient}
}

// Summary returns the page summary for title. A missing page or an empty
// extract yields nil without error.
func (c *Client) Summary(ctx context.Context, title string) (*Summary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	endpoint := c.baseURL + url.PathEscape(whitespace.ReplaceAllString(title, "_"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: request %q: %w", title, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("wikipedia: http %d for %q: %s", resp.StatusCode, title, strings.TrimSpace(string(body)))
	}
	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("wikipedia: decode %q: %w", title, err)
	}
	if summary.Title == "" || summary.Extract == "" {
		return nil, nil
	}
	return &summary, nil
}
