// Package wakeword provides wake-word detection and the activation gate that it opens.
//
// A Detector reads fixed-size PCM frames from an AudioSource, runs them through a
// Classifier and fires OnDetected for every positive frame. In the assistant the
// callback is wired to Gate.Activate, and the listening loop polls Gate.IsActive on
// every frame it processes.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Classifier spots a keyword in single audio frames
type Classifier interface {
	// Open allocates the underlying engine. It is called once per Run.
	Open() error

	// FrameLength is the number of 16-bit samples Process expects
	FrameLength() int

	// SampleRate is the sample rate Process expects
	SampleRate() int

	// Process returns the index of the detected keyword, or -1 when none was heard
	Process(pcm []int16) (int, error)

	// Close releases the engine
	Close() error
}

// AudioSource delivers mono 16-bit PCM frames
type AudioSource interface {
	// ReadFrame blocks until a frame of exactly n samples is available
	ReadFrame(ctx context.Context, n int) ([]int16, error)
}

// DetectorOptions tunes a Detector
type DetectorOptions struct {
	// LoopDelay is slept after every frame to keep the loop from hogging the CPU
	LoopDelay time.Duration

	// Logger receives detector messages (defaults to a no-op logger)
	Logger *zap.Logger
}

// Detector listens for the wake word continuously and fires OnDetected
type Detector struct {
	classifier Classifier
	source     AudioSource
	opts       DetectorOptions
	logger     *zap.Logger

	// OnDetected is called from the detection goroutine on every positive frame.
	// Set before calling Run.
	OnDetected func()

	mu      sync.Mutex
	running bool
	paused  bool
}

// NewDetector creates a Detector. Call Run to begin listening.
func NewDetector(classifier Classifier, source AudioSource, opts DetectorOptions) (*Detector, error) {
	if classifier == nil {
		return nil, errors.New("wake word classifier is required")
	}
	if source == nil {
		return nil, errors.New("audio source is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		classifier: classifier,
		source:     source,
		opts:       opts,
		logger:     logger.With(zap.String("component", "wakeword")),
	}, nil
}

// Pause stops reporting detections, e.g. while the assistant is speaking
func (d *Detector) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables detection after a Pause
func (d *Detector) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// Running reports whether Run is currently active
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Detector) isPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Run opens the classifier and processes audio until ctx is cancelled or the source
// fails. Classifier resources are always released before returning.
func (d *Detector) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("wake word detector already running")
	}
	d.running = true
	d.mu.Unlock()

	defer d.stop()

	if err := d.classifier.Open(); err != nil {
		return fmt.Errorf("failed to initialize wake word engine: %w", err)
	}

	frameLength := d.classifier.FrameLength()
	d.logger.Info("wake word detection started",
		zap.Int("sample_rate", d.classifier.SampleRate()),
		zap.Int("frame_length", frameLength),
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		// Read audio frame
		pcm, err := d.source.ReadFrame(ctx, frameLength)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read audio frame: %w", err)
		}

		// Process audio for wake word
		keywordIndex, err := d.classifier.Process(pcm)
		if err != nil {
			d.logger.Warn("wake word processing failed", zap.Error(err))
			continue
		}

		if keywordIndex >= 0 && !d.isPaused() {
			d.logger.Info("wake word detected", zap.Int("keyword_index", keywordIndex))
			if d.OnDetected != nil {
				d.OnDetected()
			}
		}

		if d.opts.LoopDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.opts.LoopDelay):
			}
		}
	}
}

// stop releases the classifier and marks the detector idle
func (d *Detector) stop() {
	if err := d.classifier.Close(); err != nil {
		d.logger.Warn("failed to release wake word engine", zap.Error(err))
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.logger.Info("wake word detector stopped and resources released")
}
