package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type searxResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Engine  string `json:"engine"`
}

type searxResponse struct {
	Query           string        `json:"query"`
	NumberOfResults int           `json:"number_of_results"`
	Results         []searxResult `json:"results"`
}

// SearXNG queries a SearXNG instance through its JSON API
type SearXNG struct {
	baseURL  string
	category string
	client   *http.Client
}

// NewSearXNG creates a SearXNG provider for the instance at baseURL
func NewSearXNG(baseURL, category string, client *http.Client) *SearXNG {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if category == "" {
		category = "general"
	}
	return &SearXNG{
		baseURL:  strings.TrimRight(baseURL, "/"),
		category: category,
		client:   client,
	}
}

// Name returns the provider name
func (s *SearXNG) Name() string {
	return "searxng"
}

// Search runs query against the instance
func (s *SearXNG) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	searchURL := fmt.Sprintf("%s/search?q=%s&format=json&category_%s=1",
		s.baseURL,
		url.QueryEscape(query),
		s.category,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searxResp searxResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := make([]Result, 0, len(searxResp.Results))
	for _, r := range searxResp.Results {
		results = append(results, Result{
			Title: r.Title,
			URL:   r.URL,
			Body:  r.Content,
		})
	}
	return limit(results, maxResults), nil
}
