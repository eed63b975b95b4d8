// Package audio wraps the microphone and speaker and holds the small signal helpers
// the listening loop needs: frame fan-out, energy based voice activity detection and
// WAV encoding.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

const (
	// SampleRate is the capture rate shared by the wake word engine, the VAD and Whisper
	SampleRate = 16000

	// DefaultFrameLength matches the Porcupine frame size (32ms at 16kHz)
	DefaultFrameLength = 512

	defaultSubscriberBuffer = 64
)

// ErrCaptureClosed is returned by ReadFrame once the capture device has stopped
var ErrCaptureClosed = errors.New("audio capture closed")

// CaptureConfig configures the microphone
type CaptureConfig struct {
	SampleRate  int // defaults to SampleRate
	FrameLength int // samples per fanned-out frame, defaults to DefaultFrameLength
}

// Capture reads mono 16-bit PCM from the default input device and fans fixed-size
// frames out to every subscriber. A subscriber that falls behind loses frames instead
// of stalling the device callback.
type Capture struct {
	cfg    CaptureConfig
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	rem    []int16
	closed bool

	drops atomic.Int64
}

// NewCapture creates a capture that is idle until Run is called
func NewCapture(cfg CaptureConfig, logger *zap.Logger) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = DefaultFrameLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Capture{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "capture")),
		subs:   make(map[int]*Subscription),
		rem:    make([]int16, 0, cfg.FrameLength*2),
	}
}

// Subscribe registers a new frame consumer. buffer is the number of frames queued
// before frames start being dropped for this subscriber.
func (c *Capture) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &Subscription{
		id:      c.nextID,
		frames:  make(chan []int16, buffer),
		capture: c,
	}
	c.nextID++

	if c.closed {
		close(sub.frames)
		return sub
	}
	c.subs[sub.id] = sub
	return sub
}

// Drops returns the number of frames discarded because a subscriber was full
func (c *Capture) Drops() int64 {
	return c.drops.Load()
}

// Run opens the capture device and streams audio until ctx is cancelled. Subscribers
// are closed when Run returns.
func (c *Capture) Run(ctx context.Context) error {
	defer c.close()

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return fmt.Errorf("failed to init audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(c.cfg.SampleRate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			c.push(BytesToInt16(raw))
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to init capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	defer device.Stop()

	c.logger.Info("audio capture started",
		zap.Int("sample_rate", c.cfg.SampleRate),
		zap.Int("frame_length", c.cfg.FrameLength),
	)

	<-ctx.Done()

	c.logger.Info("audio capture stopped", zap.Int64("dropped_frames", c.Drops()))
	return nil
}

// push re-chunks raw samples into frames and delivers them to every subscriber
func (c *Capture) push(pcm []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.rem = append(c.rem, pcm...)
	for len(c.rem) >= c.cfg.FrameLength {
		frame := make([]int16, c.cfg.FrameLength)
		copy(frame, c.rem[:c.cfg.FrameLength])
		c.rem = c.rem[c.cfg.FrameLength:]

		for _, sub := range c.subs {
			select {
			case sub.frames <- frame:
			default:
				c.drops.Add(1)
			}
		}
	}

	// Compact so the backing array doesn't grow without bound
	if cap(c.rem) > c.cfg.FrameLength*8 {
		c.rem = append(make([]int16, 0, c.cfg.FrameLength*2), c.rem...)
	}
}

func (c *Capture) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(sub.frames)
	}
}

func (c *Capture) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, sub := range c.subs {
		close(sub.frames)
		delete(c.subs, id)
	}
}

// Subscription is one consumer's view of the capture stream. It is not safe for use
// by more than one goroutine.
type Subscription struct {
	id      int
	frames  chan []int16
	capture *Capture
	pending []int16
}

// ReadFrame blocks until exactly n samples are available. Frames are re-chunked, so n
// does not have to match the capture frame length.
func (s *Subscription) ReadFrame(ctx context.Context, n int) ([]int16, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid frame length %d", n)
	}

	for len(s.pending) < n {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frame, ok := <-s.frames:
			if !ok {
				return nil, ErrCaptureClosed
			}
			s.pending = append(s.pending, frame...)
		}
	}

	out := make([]int16, n)
	copy(out, s.pending[:n])
	s.pending = s.pending[n:]
	return out, nil
}

// Close detaches the subscription from the capture
func (s *Subscription) Close() {
	s.capture.unsubscribe(s.id)
}

// BytesToInt16 converts little-endian 16-bit PCM bytes to samples. A trailing odd
// byte is ignored.
func BytesToInt16(raw []byte) []int16 {
	n := len(raw) / 2
	pcm := make([]int16, n)
	for i := range n {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return pcm
}

// Int16ToBytes converts samples to little-endian 16-bit PCM bytes
func Int16ToBytes(pcm []int16) []byte {
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}
