package melissa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/search"
	"github.com/ethanbaker/melissa/internal/stores/books"
	"github.com/ethanbaker/melissa/internal/stores/memory"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubSearch struct {
	results []search.Result
	err     error
	queries []string
}

func (s *stubSearch) Name() string { return "stub" }

func (s *stubSearch) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type staticExtractor []string

func (e staticExtractor) Extract(context.Context, []recall.Message) ([]string, error) {
	return e, nil
}

type tableEmbedder map[string][]float32

func (e tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e[t]
		if !ok {
			return nil, errors.New("unknown text")
		}
		out[i] = v
	}
	return out, nil
}

type recordingConversation struct {
	said  []string
	ended bool
}

func (r *recordingConversation) Say(_ context.Context, text string) error {
	r.said = append(r.said, text)
	return nil
}

func (r *recordingConversation) End(context.Context) error {
	r.ended = true
	return nil
}

func newMemoryService(t *testing.T) *recall.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := memory.NewStore(db)
	require.NoError(t, err)

	return recall.NewService(store,
		staticExtractor{"Likes jazz"},
		tableEmbedder{
			"Likes jazz":          {1, 0},
			"play me something":   {0.9, 0.1},
			"what is the capital": {0, 1},
		},
		recall.Options{},
	)
}

func newTestAgent(t *testing.T, opts Options) *Agent {
	t.Helper()
	a, err := New(utils.NewConfig(nil), opts)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2025, 6, 2, 18, 30, 0, 0, time.UTC) }
	return a
}

func findTool(t *testing.T, a *Agent, name string) agents.FunctionTool {
	t.Helper()
	for _, tool := range a.Agent().Tools {
		if ft, ok := tool.(agents.FunctionTool); ok && ft.Name == name {
			return ft
		}
	}
	t.Fatalf("tool %s not registered", name)
	return agents.FunctionTool{}
}

func callTool(t *testing.T, ctx context.Context, a *Agent, name, arguments string) string {
	t.Helper()
	out, err := findTool(t, a, name).OnInvokeTool(ctx, arguments)
	require.NoError(t, err)
	result, ok := out.(string)
	require.True(t, ok)
	return result
}

func TestNew(t *testing.T) {
	a := newTestAgent(t, Options{Search: &stubSearch{}})

	assert.Equal(t, "Melissa", a.Name())
	assert.NotNil(t, a.Config())

	var names []string
	for _, tool := range a.Agent().Tools {
		names = append(names, tool.(agents.FunctionTool).Name)
	}
	assert.Equal(t, []string{
		"check_my_books",
		"get_book_info",
		"search_the_web",
		"show_what_i_know",
		"forget_everything",
		"end_conversation",
	}, names)

	assert.Contains(t, a.basePrompt, "You are Melissa")
	assert.Contains(t, a.basePrompt, `saying "Melissa"`)
}

func TestNew_SyspromptPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "melissa.md")
	require.NoError(t, os.WriteFile(path, []byte("You are {{name}}. Wake word: {{wake_word}}."), 0644))

	a, err := New(utils.NewConfig(map[string]string{"SYSPROMPT_PATH": path, "WAKE_WORD": "Jarvis"}), Options{Search: &stubSearch{}})
	require.NoError(t, err)
	assert.Equal(t, "You are Melissa. Wake word: Jarvis.", a.basePrompt)

	_, err = New(utils.NewConfig(map[string]string{"SYSPROMPT_PATH": filepath.Join(dir, "missing.md")}), Options{})
	assert.Error(t, err)
}

func TestGetPrompt(t *testing.T) {
	mem := newMemoryService(t)
	mem.LearnFromConversation(context.Background(), "I love jazz", "Great taste!")

	a := newTestAgent(t, Options{Search: &stubSearch{}, Memory: mem})

	t.Run("without input", func(t *testing.T) {
		prompt, err := a.getPrompt(context.Background(), a.Agent())
		require.NoError(t, err)
		assert.Contains(t, prompt, "## Key Facts:\n- Books on record: 3\n- Web search: stub")
		assert.Contains(t, prompt, "- Current time: 18:30 UTC")
		assert.Contains(t, prompt, "- Today's date: Monday, 2025-06-02")
		assert.NotContains(t, prompt, "[RELEVANT MEMORIES ABOUT USER]")
	})

	t.Run("relevant memory injected", func(t *testing.T) {
		prompt, err := a.getPrompt(agent.WithInput(context.Background(), "play me something"), a.Agent())
		require.NoError(t, err)
		assert.Contains(t, prompt, "[RELEVANT MEMORIES ABOUT USER]\n- Likes jazz\n[END MEMORIES]")
	})

	t.Run("irrelevant memory skipped", func(t *testing.T) {
		prompt, err := a.getPrompt(agent.WithInput(context.Background(), "what is the capital"), a.Agent())
		require.NoError(t, err)
		assert.NotContains(t, prompt, "Likes jazz")
	})
}

func TestBookTools(t *testing.T) {
	a := newTestAgent(t, Options{Search: &stubSearch{}, Books: books.DefaultCatalog()})
	ctx := context.Background()

	assert.Equal(t,
		"You have read 3 books:\n- Book 1 by Author 1\n- Book 2 by Author 2\n- Book 3 by Author 3",
		callTool(t, ctx, a, "check_my_books", "{}"))

	tests := []struct {
		name      string
		arguments string
		want      string
	}{
		{
			name:      "found",
			arguments: `{"book_name": "book 2"}`,
			want:      "Book Details:\n- Title: Book 2\n- Author: Author 2\n- Status: read\n- Rating: Not rated\n- Notes: No notes",
		},
		{
			name:      "not found",
			arguments: `{"book_name": "Dune"}`,
			want:      "I couldn't find a book called 'Dune'. Available books are: Book 1, Book 2, Book 3",
		},
		{
			name:      "missing name",
			arguments: `{"book_name": ""}`,
			want:      "Sorry, that didn't work: book_name parameter is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, callTool(t, ctx, a, "get_book_info", tt.arguments))
		})
	}
}

func TestWebSearchTool(t *testing.T) {
	stub := &stubSearch{results: []search.Result{{Title: "Paris weather", Body: "Sunny, 24C"}}}
	a := newTestAgent(t, Options{Search: stub})
	ctx := context.Background()

	assert.Equal(t,
		"Search results for 'weather in paris':\n\n1. Paris weather\n   Sunny, 24C...\n\n",
		callTool(t, ctx, a, "search_the_web", `{"query": "weather in paris"}`))
	assert.Equal(t, []string{"weather in paris"}, stub.queries)

	stub.err = errors.New("offline")
	assert.Equal(t,
		"Sorry, I couldn't search the web right now. Error: offline",
		callTool(t, ctx, a, "search_the_web", `{"query": "weather in paris"}`))

	assert.Contains(t, callTool(t, ctx, a, "search_the_web", `not json`), "invalid arguments")
}

func TestMemoryTools(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable", func(t *testing.T) {
		a := newTestAgent(t, Options{Search: &stubSearch{}})
		assert.Equal(t, "Memory system not available.", callTool(t, ctx, a, "show_what_i_know", "{}"))
		assert.Equal(t, "Memory system not available.", callTool(t, ctx, a, "forget_everything", "{}"))
	})

	t.Run("available", func(t *testing.T) {
		mem := newMemoryService(t)
		a := newTestAgent(t, Options{Search: &stubSearch{}, Memory: mem})

		mem.LearnFromConversation(ctx, "I love jazz", "Nice")
		assert.Equal(t, "Everything I know about you (1 memories):\n- Likes jazz", callTool(t, ctx, a, "show_what_i_know", "{}"))
		assert.Equal(t, "All memories have been deleted. Starting fresh!", callTool(t, ctx, a, "forget_everything", "{}"))
		assert.Equal(t, "I don't have any memories stored yet. Tell me things about yourself!", callTool(t, ctx, a, "show_what_i_know", "{}"))
	})
}

func TestEndConversationTool(t *testing.T) {
	a := newTestAgent(t, Options{Search: &stubSearch{}})

	assert.Equal(t, Farewell, callTool(t, context.Background(), a, "end_conversation", "{}"))

	conv := &recordingConversation{}
	ctx := agent.WithConversation(context.Background(), conv)
	assert.Equal(t, "Conversation ended", callTool(t, ctx, a, "end_conversation", "{}"))
	assert.Equal(t, []string{"Goodbye! Say 'Melissa' when you need me again."}, conv.said)
	assert.True(t, conv.ended)
}

func TestToolHook(t *testing.T) {
	var calls []ToolCall
	a := newTestAgent(t, Options{
		Search: &stubSearch{},
		OnTool: func(c ToolCall) { calls = append(calls, c) },
	})
	ctx := context.Background()

	callTool(t, ctx, a, "check_my_books", "{}")
	callTool(t, ctx, a, "get_book_info", "{")

	require.Len(t, calls, 2)
	assert.Equal(t, "check_my_books", calls[0].Name)
	assert.NoError(t, calls[0].Err)
	assert.Equal(t, "get_book_info", calls[1].Name)
	assert.Error(t, calls[1].Err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
