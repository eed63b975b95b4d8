package recall

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethanbaker/melissa/internal/stores/memory"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeExtractor struct {
	facts []string
	err   error
	calls [][]Message
}

func (f *fakeExtractor) Extract(_ context.Context, messages []Message) ([]string, error) {
	f.calls = append(f.calls, messages)
	return f.facts, f.err
}

// fakeEmbedder maps known texts to fixed vectors
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func newTestEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"Likes jazz":           {1, 0, 0},
		"Likes jazz music":     {0.99, 0.1, 0},
		"Has a dog named Rex":  {0, 1, 0},
		"Works as a carpenter": {0, 0.2, 0.98},
		"what music do I like": {0.8, 0.6, 0},
		"what's the weather":   {0, 0, 1},
	}}
}

func newTestService(t *testing.T, extractor Extractor, embedder Embedder) (*Service, *memory.Store) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := memory.NewStore(db)
	require.NoError(t, err)

	svc := NewService(store, extractor, embedder, Options{})
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestService_Unavailable(t *testing.T) {
	ctx := context.Background()

	var nilService *Service
	noEmbedder := NewService(nil, &fakeExtractor{}, nil, Options{})

	for name, svc := range map[string]*Service{"nil": nilService, "unconfigured": noEmbedder} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, svc.Available())
			assert.Equal(t, "Memory system not available.", svc.GetAllMemories(ctx))
			assert.Equal(t, "Memory system not available.", svc.DeleteAllMemories(ctx))
			assert.Equal(t, "Memory system not available.", svc.LearnFromConversation(ctx, "hi", "hello"))
			assert.Empty(t, svc.GetRelevantContext(ctx, "anything"))

			_, err := svc.Memories(ctx)
			assert.ErrorIs(t, err, ErrUnavailable)
			_, err = svc.Forget(ctx)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestService_GetAllMemories(t *testing.T) {
	ctx := context.Background()
	extractor := &fakeExtractor{}
	svc, _ := newTestService(t, extractor, newTestEmbedder())

	assert.Equal(t, "I don't have any memories stored yet. Tell me things about yourself!", svc.GetAllMemories(ctx))

	extractor.facts = []string{"Likes jazz", "Has a dog named Rex"}
	assert.Equal(t, "Learned: Likes jazz, Has a dog named Rex", svc.LearnFromConversation(ctx, "I love jazz. My dog Rex agrees.", "Nice!"))

	assert.Equal(t,
		"Everything I know about you (2 memories):\n- Likes jazz\n- Has a dog named Rex",
		svc.GetAllMemories(ctx))

	require.Len(t, extractor.calls, 1)
	assert.Equal(t, []Message{
		{Role: "user", Content: "I love jazz. My dog Rex agrees."},
		{Role: "assistant", Content: "Nice!"},
	}, extractor.calls[0])
}

func TestService_AddConversationDeduplicates(t *testing.T) {
	ctx := context.Background()
	extractor := &fakeExtractor{facts: []string{"Likes jazz"}}
	svc, store := newTestService(t, extractor, newTestEmbedder())

	assert.Equal(t, "Learned: Likes jazz", svc.AddConversation(ctx, nil))

	// the exact same fact is not stored twice
	assert.Equal(t, "Conversation processed.", svc.AddConversation(ctx, nil))

	// a near duplicate replaces the existing memory
	extractor.facts = []string{"Likes jazz music"}
	assert.Equal(t, "Learned: Likes jazz music", svc.AddConversation(ctx, nil))

	memories, err := store.List(ctx, DefaultUserID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "Likes jazz music", memories[0].Text)
	assert.Equal(t, "conversation", memories[0].Metadata["type"])
	assert.Equal(t, "2025-06-01T09:00:00Z", memories[0].Metadata["timestamp"])

	// an unrelated fact is added alongside
	extractor.facts = []string{"Has a dog named Rex"}
	svc.AddConversation(ctx, nil)
	count, err := store.Count(ctx, DefaultUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestService_AddConversationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no facts", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeExtractor{}, newTestEmbedder())
		assert.Equal(t, "Conversation processed.", svc.AddConversation(ctx, nil))
	})

	t.Run("extractor fails", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeExtractor{err: errors.New("rate limited")}, newTestEmbedder())
		assert.Equal(t, "Couldn't process conversation: rate limited", svc.AddConversation(ctx, nil))
	})

	t.Run("embedder fails", func(t *testing.T) {
		embedder := newTestEmbedder()
		embedder.err = errors.New("timeout")
		svc, _ := newTestService(t, &fakeExtractor{facts: []string{"Likes jazz"}}, embedder)
		assert.Equal(t, "Couldn't process conversation: timeout", svc.AddConversation(ctx, nil))
	})
}

func TestService_GetRelevantContext(t *testing.T) {
	ctx := context.Background()
	extractor := &fakeExtractor{facts: []string{"Likes jazz", "Has a dog named Rex", "Works as a carpenter"}}
	svc, _ := newTestService(t, extractor, newTestEmbedder())

	assert.Empty(t, svc.GetRelevantContext(ctx, "what music do I like"), "no memories yet")

	svc.AddConversation(ctx, nil)

	tests := []struct {
		query string
		want  string
	}{
		{
			query: "what music do I like",
			want:  "\n[RELEVANT MEMORIES ABOUT USER]\n- Likes jazz\n- Has a dog named Rex\n[END MEMORIES]\n",
		},
		{
			query: "what's the weather",
			want:  "\n[RELEVANT MEMORIES ABOUT USER]\n- Works as a carpenter\n[END MEMORIES]\n",
		},
		{query: "   ", want: ""},
		{query: "unknown query", want: ""}, // embedding fails
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.GetRelevantContext(ctx, tt.query))
		})
	}
}

func TestService_DeleteAllMemories(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &fakeExtractor{facts: []string{"Likes jazz"}}, newTestEmbedder())

	svc.AddConversation(ctx, nil)
	assert.Equal(t, "All memories have been deleted. Starting fresh!", svc.DeleteAllMemories(ctx))

	count, err := store.Count(ctx, DefaultUserID)
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err := svc.Forget(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_ScopedToUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &fakeExtractor{facts: []string{"Likes jazz"}}, newTestEmbedder())
	svc.AddConversation(ctx, nil)

	other := NewService(store, &fakeExtractor{}, newTestEmbedder(), Options{UserID: "someone_else"})
	assert.Equal(t, "someone_else", other.UserID())
	assert.Equal(t, "I don't have any memories stored yet. Tell me things about yourself!", other.GetAllMemories(ctx))

	memories, err := svc.Memories(ctx)
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}
