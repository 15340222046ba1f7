// Package websearch provides the external web-search and page-content
// extraction capabilities consumed by the search and research tools.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wingleeio/chat-zeron/internal/log"
)

// Result is one search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Client queries a SearxNG-compatible JSON search endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   log.Logger
}

// NewClient creates a search client. A nil httpClient gets a bounded default.
func NewClient(endpoint, apiKey string, httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, http: httpClient, logger: logger}
}

// searchResponse mirrors the endpoint's JSON shape.
type searchResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search issues one search request and returns up to limit results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing search endpoint: %w", err)
	}
	u = u.JoinPath("search")
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, limit)
	for _, r := range body.Results {
		if len(results) == limit {
			break
		}
		if r.URL == "" {
			continue
		}
		results = append(results, Result{URL: r.URL, Title: r.Title, Snippet: r.Content})
	}
	c.logger.Debug("search completed", "query", query, "results", len(results))
	return results, nil
}
