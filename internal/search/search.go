// Package search looks things up on the web for the assistant.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethanbaker/melissa/pkg/utils"
)

const (
	// DefaultMaxResults is the number of results the assistant reads from
	DefaultMaxResults = 5

	snippetLength  = 200
	requestTimeout = 15 * time.Second
	userAgent      = "Melissa/1.0 (Voice Assistant)"
)

// Result is a single web search hit
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Body  string `json:"body"`
}

// Provider runs a web search
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// NewProviderFromConfig returns a SearXNG provider when SEARXNG_URL is set and
// DuckDuckGo otherwise
func NewProviderFromConfig(cfg *utils.Config) Provider {
	client := &http.Client{Timeout: requestTimeout}

	if base := cfg.Get("SEARXNG_URL"); base != "" {
		return NewSearXNG(base, cfg.GetWithDefault("SEARXNG_CATEGORY", "general"), client)
	}
	return NewDuckDuckGo(cfg.GetWithDefault("DUCKDUCKGO_URL", DuckDuckGoURL), client)
}

// Format renders results the way the assistant reads them out
func Format(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("I couldn't find any results for '%s'.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for '%s':\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   %s...\n\n", truncate(r.Body, snippetLength))
	}
	return sb.String()
}

// FormatError renders a failed search for the user
func FormatError(err error) string {
	return fmt.Sprintf("Sorry, I couldn't search the web right now. Error: %v", err)
}

// Run searches with p and formats the outcome, including failures
func Run(ctx context.Context, p Provider, query string, maxResults int) string {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	results, err := p.Search(ctx, query, maxResults)
	if err != nil {
		return FormatError(err)
	}
	return Format(query, results)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func limit(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
