package wakeword

import (
	"errors"
	"fmt"
	"os"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
	"go.uber.org/zap"
)

// FallbackKeyword is the built-in keyword used when no custom keyword file is available
const FallbackKeyword = "jarvis"

// DefaultSensitivity balances missed wake words against false positives
const DefaultSensitivity = 0.5

// PorcupineConfig configures the Picovoice Porcupine classifier
type PorcupineConfig struct {
	AccessKey   string  // Picovoice console access key (required)
	KeywordPath string  // path to a custom .ppn keyword file (optional)
	Sensitivity float32 // detection sensitivity in [0, 1]; higher = more false positives
}

// Porcupine implements Classifier on top of the Picovoice Porcupine engine
type Porcupine struct {
	cfg    PorcupineConfig
	engine *porcupine.Porcupine
	logger *zap.Logger
}

// NewPorcupine validates the configuration and creates an unopened classifier
func NewPorcupine(cfg PorcupineConfig, logger *zap.Logger) (*Porcupine, error) {
	if cfg.AccessKey == "" {
		return nil, errors.New("picovoice access key required: set PICOVOICE_ACCESS_KEY (get one at https://console.picovoice.ai)")
	}
	if cfg.Sensitivity < 0 || cfg.Sensitivity > 1 {
		return nil, fmt.Errorf("sensitivity must be between 0 and 1, got %.2f", cfg.Sensitivity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Porcupine{cfg: cfg, logger: logger.With(zap.String("component", "porcupine"))}, nil
}

// Open initializes the Porcupine engine, falling back to the built-in keyword when
// the custom keyword file cannot be found
func (p *Porcupine) Open() error {
	engine := &porcupine.Porcupine{
		AccessKey:     p.cfg.AccessKey,
		Sensitivities: []float32{p.cfg.Sensitivity},
	}

	if p.customKeywordAvailable() {
		engine.KeywordPaths = []string{p.cfg.KeywordPath}
		p.logger.Info("loaded custom wake word", zap.String("path", p.cfg.KeywordPath))
	} else {
		engine.BuiltInKeywords = []porcupine.BuiltInKeyword{porcupine.JARVIS}
		p.logger.Warn("no custom wake word file found, using built-in fallback",
			zap.String("keyword", FallbackKeyword),
			zap.String("hint", "create a custom wake word at https://console.picovoice.ai/ppn"),
		)
	}

	if err := engine.Init(); err != nil {
		return fmt.Errorf("failed to init porcupine: %w", err)
	}

	p.engine = engine
	return nil
}

// FrameLength returns the engine's frame size in samples
func (p *Porcupine) FrameLength() int {
	return porcupine.FrameLength
}

// SampleRate returns the engine's expected sample rate
func (p *Porcupine) SampleRate() int {
	return porcupine.SampleRate
}

// Process runs one frame through the engine
func (p *Porcupine) Process(pcm []int16) (int, error) {
	if p.engine == nil {
		return -1, errors.New("porcupine engine not initialized")
	}
	return p.engine.Process(pcm)
}

// Close deletes the engine. Safe to call more than once.
func (p *Porcupine) Close() error {
	if p.engine == nil {
		return nil
	}
	err := p.engine.Delete()
	p.engine = nil
	return err
}

func (p *Porcupine) customKeywordAvailable() bool {
	if p.cfg.KeywordPath == "" {
		return false
	}
	_, err := os.Stat(p.cfg.KeywordPath)
	return err == nil
}
