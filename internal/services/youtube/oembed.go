package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const minOEmbedTimeout = 250 * time.Millisecond

// Metadata is the subset of the oEmbed reply stored on videos.
type Metadata struct {
	Title        string
	AuthorName   string
	AuthorURL    string
	ThumbnailURL string
}

// OEmbedClient fetches title and channel metadata.
type OEmbedClient struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewOEmbedClient builds a client; timeouts under 250ms are raised.
func NewOEmbedClient(endpoint string, timeout time.Duration, client *http.Client) *OEmbedClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &OEmbedClient{endpoint: endpoint, timeout: max(minOEmbedTimeout, timeout), client: client}
}

// Fetch returns metadata for a YouTube URL, or nil on any failure. The call
// is best effort and never returns an error.
func (c *OEmbedClient) Fetch(ctx context.Context, videoURL string) *Metadata {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := Validate(videoURL)
	if err != nil {
		return nil
	}
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil
	}
	q := endpoint.Query()
	q.Set("url", u.String())
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}
	meta := &Metadata{
		Title:        stringField(payload, "title"),
		AuthorName:   stringField(payload, "author_name"),
		AuthorURL:    stringField(payload, "author_url"),
		ThumbnailURL: stringField(payload, "thumbnail_url"),
	}
	if meta.Title == "" {
		return nil
	}
	return meta
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}
