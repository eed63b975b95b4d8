// Package speech converts between audio and text using the OpenAI audio endpoints
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethanbaker/melissa/internal/audio"
	"github.com/sashabaranov/go-openai"
)

// ErrNoSpeech is returned when the transcription came back empty
var ErrNoSpeech = errors.New("no speech recognized")

// Transcriber turns recorded speech into text
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}

// transcriptionClient is the part of the go-openai client used for speech to text
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperConfig configures the Whisper transcriber
type WhisperConfig struct {
	Model    string // defaults to whisper-1
	Language string // ISO-639-1, defaults to en
	TempDir  string // where utterances are staged for upload, defaults to os.TempDir()
}

// Whisper transcribes audio with OpenAI Whisper
type Whisper struct {
	client transcriptionClient
	cfg    WhisperConfig
}

// NewWhisper creates a transcriber backed by the given go-openai client
func NewWhisper(client *openai.Client, cfg WhisperConfig) *Whisper {
	return newWhisper(client, cfg)
}

func newWhisper(client transcriptionClient, cfg WhisperConfig) *Whisper {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Whisper{client: client, cfg: cfg}
}

// Transcribe stages pcm as a WAV file and sends it to Whisper
func (w *Whisper) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	f, err := os.CreateTemp(w.cfg.TempDir, "melissa-utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	audioFile := f.Name()
	f.Close()
	defer os.Remove(audioFile)

	if err := audio.WriteWAV(audioFile, pcm, sampleRate); err != nil {
		return "", err
	}

	return w.TranscribeFile(ctx, audioFile)
}

// TranscribeFile sends an existing audio file to Whisper
func (w *Whisper) TranscribeFile(ctx context.Context, audioFile string) (string, error) {
	req := openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: filepath.Clean(audioFile),
		Language: w.cfg.Language,
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
