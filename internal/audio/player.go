package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// PlaybackSampleRate is the rate of the PCM produced by the speech synthesizer
const PlaybackSampleRate = 24000

// Player plays mono 16-bit little-endian PCM through the default output device
type Player struct {
	ctx        *oto.Context
	sampleRate int
	logger     *zap.Logger

	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
}

// NewPlayer initializes the system audio context. Only one player may exist per process.
func NewPlayer(sampleRate int, logger *zap.Logger) (*Player, error) {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio output: %w", err)
	}
	<-readyChan

	logger = logger.With(zap.String("component", "player"))
	logger.Debug("audio player initialized", zap.Int("sample_rate", sampleRate))

	return &Player{ctx: ctx, sampleRate: sampleRate, logger: logger}, nil
}

// Play blocks until pcm has been played, Stop is called or ctx is cancelled
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		_ = player.Close()
		return errors.New("audio player is busy")
	}
	p.active = player
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()

	player.Play()
	p.logger.Debug("playing audio", zap.Int("bytes", len(pcm)))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			_ = player.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return player.Close()
}

// Stop interrupts the currently playing audio, if any. Safe to call concurrently
// and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.logger.Debug("playback interrupted")
	}
}

// Duration returns how long pcm takes to play at the player's sample rate
func (p *Player) Duration(pcm []byte) time.Duration {
	return PCMDuration(len(pcm)/2, p.sampleRate)
}

// PCMDuration returns the play time of n mono samples at rate
func PCMDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}
