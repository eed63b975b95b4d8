package recall

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

type fakeEmbeddingClient struct {
	data []openai.Embedding
	err  error
	req  openai.EmbeddingRequest
}

func (f *fakeEmbeddingClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.req = conv.(openai.EmbeddingRequest)
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	return openai.EmbeddingResponse{Data: f.data}, nil
}

func TestOpenAIExtractor(t *testing.T) {
	client := &fakeChatClient{content: `{"facts": ["Likes jazz", "  ", "Has a dog named Rex "]}`}
	extractor := newOpenAIExtractor(client, "")

	facts, err := extractor.Extract(context.Background(), []Message{
		{Role: "user", Content: "I love jazz and my dog Rex"},
		{Role: "assistant", Content: "Lovely!"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Likes jazz", "Has a dog named Rex"}, facts)

	assert.Equal(t, ExtractionModel, client.req.Model)
	assert.InDelta(t, 0.1, client.req.Temperature, 1e-6)
	require.NotNil(t, client.req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, client.req.ResponseFormat.Type)
	require.Len(t, client.req.Messages, 2)
	assert.Equal(t, "user: I love jazz and my dog Rex\nassistant: Lovely!\n", client.req.Messages[1].Content)
}

func TestOpenAIExtractor_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeChatClient
	}{
		{name: "request fails", client: &fakeChatClient{err: errors.New("boom")}},
		{name: "invalid json", client: &fakeChatClient{content: "Likes jazz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newOpenAIExtractor(tt.client, "gpt-4o").Extract(context.Background(), nil)
			assert.Error(t, err)
			assert.Equal(t, "gpt-4o", tt.client.req.Model)
		})
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	client := &fakeEmbeddingClient{data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}
	embedder := newOpenAIEmbedder(client, "")

	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, EmbeddingModel, client.req.Model)
	assert.Equal(t, []string{"a", "b"}, client.req.Input)

	vectors, err = embedder.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)

	_, err = embedder.Embed(context.Background(), []string{"a", "b", "c"})
	assert.Error(t, err, "count mismatch")

	client.err = errors.New("unauthorized")
	_, err = embedder.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}
