package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Synthesizer turns text into mono 16-bit PCM
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// speechClient is the part of the go-openai client used for text to speech
type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// TTSConfig configures OpenAI text to speech
type TTSConfig struct {
	Model string  // defaults to tts-1
	Voice string  // defaults to nova
	Speed float64 // 0.25 - 4.0, defaults to 1.0
}

// OpenAITTS synthesizes speech as raw 24kHz PCM with the OpenAI speech endpoint
type OpenAITTS struct {
	client speechClient
	cfg    TTSConfig
}

// NewOpenAITTS creates a synthesizer backed by the given go-openai client
func NewOpenAITTS(client *openai.Client, cfg TTSConfig) *OpenAITTS {
	return newOpenAITTS(client, cfg)
}

func newOpenAITTS(client speechClient, cfg TTSConfig) *OpenAITTS {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	return &OpenAITTS{client: client, cfg: cfg}
}

// Synthesize returns the PCM rendering of text
func (t *OpenAITTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("nothing to say")
	}

	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(t.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          t.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	return pcm, nil
}
