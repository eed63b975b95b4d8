package recall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// ExtractionModel is the chat model used to pull facts out of a conversation
	ExtractionModel = openai.GPT4oMini

	// EmbeddingModel is the model used to embed facts and queries
	EmbeddingModel = openai.SmallEmbedding3

	extractionTemperature = 0.1
)

const extractionPrompt = `You extract durable facts about the user from a conversation with their voice assistant.

Rules:
- Only keep facts about the user: preferences, plans, relationships, biography, habits.
- Ignore small talk, questions and anything the assistant said about itself.
- Write every fact as a short standalone sentence in the third person, e.g. "Likes jazz".
- Return an empty list when nothing is worth remembering.

Respond with JSON of the form {"facts": ["...", "..."]}.`

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIExtractor extracts facts with a JSON-mode chat completion
type OpenAIExtractor struct {
	client chatClient
	model  string
}

// NewOpenAIExtractor creates an extractor; an empty model uses ExtractionModel
func NewOpenAIExtractor(client *openai.Client, model string) *OpenAIExtractor {
	return newOpenAIExtractor(client, model)
}

func newOpenAIExtractor(client chatClient, model string) *OpenAIExtractor {
	if model == "" {
		model = ExtractionModel
	}
	return &OpenAIExtractor{client: client, model: model}
}

// Extract returns the facts worth remembering from messages
func (e *OpenAIExtractor) Extract(ctx context.Context, messages []Message) ([]string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: extractionTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("fact extraction returned no choices")
	}

	var out struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extracted facts: %w", err)
	}

	facts := make([]string, 0, len(out.Facts))
	for _, f := range out.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

// OpenAIEmbedder embeds text with the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client embeddingClient
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder; an empty model uses EmbeddingModel
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return newOpenAIEmbedder(client, model)
}

func newOpenAIEmbedder(client embeddingClient, model string) *OpenAIEmbedder {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = EmbeddingModel
	}
	return &OpenAIEmbedder{client: client, model: m}
}

// Embed returns one vector per input text, in input order
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
