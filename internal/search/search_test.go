package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	long := strings.Repeat("é", 250)

	tests := []struct {
		name    string
		results []Result
		want    string
	}{
		{
			name: "no results",
			want: "I couldn't find any results for 'golang'.",
		},
		{
			name: "two results",
			results: []Result{
				{Title: "The Go Programming Language", Body: "Go is expressive"},
				{Title: "Go (game)", Body: "An abstract strategy board game"},
			},
			want: "Search results for 'golang':\n\n" +
				"1. The Go Programming Language\n   Go is expressive...\n\n" +
				"2. Go (game)\n   An abstract strategy board game...\n\n",
		},
		{
			name:    "long body truncated",
			results: []Result{{Title: "Long", Body: long}},
			want:    "Search results for 'golang':\n\n1. Long\n   " + strings.Repeat("é", 200) + "...\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format("golang", tt.results))
		})
	}
}

type stubProvider struct {
	results []Result
	err     error
	max     int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Search(_ context.Context, _ string, maxResults int) ([]Result, error) {
	s.max = maxResults
	return s.results, s.err
}

func TestRun(t *testing.T) {
	p := &stubProvider{err: errors.New("connection refused")}
	assert.Equal(t, "Sorry, I couldn't search the web right now. Error: connection refused", Run(context.Background(), p, "q", 0))
	assert.Equal(t, DefaultMaxResults, p.max)

	p = &stubProvider{results: []Result{{Title: "A", Body: "b"}}}
	assert.Equal(t, "Search results for 'q':\n\n1. A\n   b...\n\n", Run(context.Background(), p, "q", 3))
	assert.Equal(t, 3, p.max)
}

func TestSearXNG(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "weather in paris", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("category_news"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"query": "weather in paris",
			"number_of_results": 3,
			"results": [
				{"url": "https://a.example", "title": "A", "content": "first"},
				{"url": "https://b.example", "title": "B", "content": "second"},
				{"url": "https://c.example", "title": "C", "content": "third"}
			]
		}`))
	}))
	defer server.Close()

	p := NewSearXNG(server.URL+"/", "news", server.Client())
	assert.Equal(t, "searxng", p.Name())

	results, err := p.Search(context.Background(), "weather in paris", 2)
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Title: "A", URL: "https://a.example", Body: "first"},
		{Title: "B", URL: "https://b.example", Body: "second"},
	}, results)
}

func TestSearXNG_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		query   string
		wantErr string
	}{
		{name: "bad status", status: http.StatusServiceUnavailable, query: "q", wantErr: "status: 503"},
		{name: "bad json", status: http.StatusOK, body: "<html>", query: "q", wantErr: "failed to parse"},
		{name: "empty query", status: http.StatusOK, query: "  ", wantErr: "query is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewSearXNG(server.URL, "", server.Client()).Search(context.Background(), tt.query, 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const duckDuckGoPage = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="result results_links web-result">
    <h2 class="result__title">
      <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go <b>Programming</b> Language</a>
    </h2>
    <a class="result__snippet" href="#">Go is an open source programming language.</a>
  </div>
  <div class="result results_links web-result">
    <h2 class="result__title"><a class="result__a" href="https://en.wikipedia.org/wiki/Go">Go - Wikipedia</a></h2>
    <a class="result__snippet">Go is a statically typed language.</a>
  </div>
  <div class="result result--ad">
    <span>sponsored without a title link</span>
  </div>
</div>
</body></html>`

func TestDuckDuckGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "golang", r.PostForm.Get("q"))

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(duckDuckGoPage))
	}))
	defer server.Close()

	p := NewDuckDuckGo(server.URL, server.Client())
	assert.Equal(t, "duckduckgo", p.Name())

	results, err := p.Search(context.Background(), "golang", 5)
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Title: "The Go Programming Language", URL: "https://go.dev/", Body: "Go is an open source programming language."},
		{Title: "Go - Wikipedia", URL: "https://en.wikipedia.org/wiki/Go", Body: "Go is a statically typed language."},
	}, results)

	results, err = p.Search(context.Background(), "golang", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDuckDuckGo_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewDuckDuckGo(server.URL, server.Client()).Search(context.Background(), "golang", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 403")
}

func TestNewProviderFromConfig(t *testing.T) {
	p := NewProviderFromConfig(utils.NewConfig(map[string]string{"SEARXNG_URL": "http://localhost:8888"}))
	assert.Equal(t, "searxng", p.Name())

	p = NewProviderFromConfig(utils.NewConfig(nil))
	assert.Equal(t, "duckduckgo", p.Name())
	assert.Equal(t, DuckDuckGoURL, p.(*DuckDuckGo).endpoint)
}
