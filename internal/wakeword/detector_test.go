package wakeword

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClassifier reports a detection for every frame whose first sample is 1
type scriptedClassifier struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	openErr  error
	frames   int
	failNext bool
}

func (c *scriptedClassifier) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = true
	return c.openErr
}

func (c *scriptedClassifier) FrameLength() int { return 4 }
func (c *scriptedClassifier) SampleRate() int  { return 16000 }

func (c *scriptedClassifier) Process(pcm []int16) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if c.failNext {
		c.failNext = false
		return -1, errors.New("bad frame")
	}
	if len(pcm) > 0 && pcm[0] == 1 {
		return 0, nil
	}
	return -1, nil
}

func (c *scriptedClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// frameQueue replays frames and then blocks until the context ends
type frameQueue struct {
	frames chan []int16
	err    error
}

func newFrameQueue(frames ...[]int16) *frameQueue {
	q := &frameQueue{frames: make(chan []int16, len(frames))}
	for _, f := range frames {
		q.frames <- f
	}
	return q
}

func (q *frameQueue) ReadFrame(ctx context.Context, n int) ([]int16, error) {
	select {
	case f := <-q.frames:
		return f, nil
	default:
	}
	if q.err != nil {
		return nil, q.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNewDetector_Validation(t *testing.T) {
	_, err := NewDetector(nil, newFrameQueue(), DetectorOptions{})
	assert.Error(t, err)

	_, err = NewDetector(&scriptedClassifier{}, nil, DetectorOptions{})
	assert.Error(t, err)
}

func TestDetector_FiresOnPositiveFrames(t *testing.T) {
	classifier := &scriptedClassifier{}
	source := newFrameQueue(
		[]int16{0, 0, 0, 0},
		[]int16{1, 0, 0, 0},
		[]int16{0, 0, 0, 0},
		[]int16{1, 0, 0, 0},
	)

	d, err := NewDetector(classifier, source, DetectorOptions{})
	require.NoError(t, err)

	var detections atomic.Int32
	d.OnDetected = func() { detections.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return detections.Load() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.True(t, classifier.opened)
	assert.True(t, classifier.closed, "classifier must be released on stop")
	assert.False(t, d.Running())
}

func TestDetector_ActivatesGate(t *testing.T) {
	gate, clock := newTestGate(t, 30*time.Second)
	source := newFrameQueue([]int16{1, 0, 0, 0})

	d, err := NewDetector(&scriptedClassifier{}, source, DetectorOptions{})
	require.NoError(t, err)
	d.OnDetected = gate.Activate

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, gate.IsActive, time.Second, 5*time.Millisecond)

	clock.Advance(31 * time.Second)
	assert.False(t, gate.IsActive())
}

func TestDetector_PauseSuppressesDetections(t *testing.T) {
	classifier := &scriptedClassifier{}
	source := newFrameQueue([]int16{1, 0, 0, 0}, []int16{1, 0, 0, 0})

	d, err := NewDetector(classifier, source, DetectorOptions{})
	require.NoError(t, err)

	var detections atomic.Int32
	d.OnDetected = func() { detections.Add(1) }
	d.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		classifier.mu.Lock()
		defer classifier.mu.Unlock()
		return classifier.frames == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, detections.Load())

	d.Resume()
	assert.False(t, d.isPaused())
}

func TestDetector_ProcessErrorsAreSkipped(t *testing.T) {
	classifier := &scriptedClassifier{failNext: true}
	source := newFrameQueue([]int16{1, 0, 0, 0}, []int16{1, 0, 0, 0})

	d, err := NewDetector(classifier, source, DetectorOptions{})
	require.NoError(t, err)

	var detections atomic.Int32
	d.OnDetected = func() { detections.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool { return detections.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDetector_SourceErrorStopsRun(t *testing.T) {
	classifier := &scriptedClassifier{}
	source := newFrameQueue()
	source.err = errors.New("device unplugged")

	d, err := NewDetector(classifier, source, DetectorOptions{})
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.True(t, classifier.closed)
}

func TestDetector_OpenErrorReleasesResources(t *testing.T) {
	classifier := &scriptedClassifier{openErr: errors.New("invalid access key")}

	d, err := NewDetector(classifier, newFrameQueue(), DetectorOptions{})
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, classifier.closed)
	assert.False(t, d.Running())
}

func TestDetector_RejectsConcurrentRun(t *testing.T) {
	d, err := NewDetector(&scriptedClassifier{}, newFrameQueue(), DetectorOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, d.Running, time.Second, 5*time.Millisecond)
	assert.Error(t, d.Run(ctx))
}

func TestNewPorcupine_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PorcupineConfig
		wantErr bool
	}{
		{name: "missing access key", cfg: PorcupineConfig{Sensitivity: 0.5}, wantErr: true},
		{name: "sensitivity too high", cfg: PorcupineConfig{AccessKey: "key", Sensitivity: 1.5}, wantErr: true},
		{name: "sensitivity negative", cfg: PorcupineConfig{AccessKey: "key", Sensitivity: -0.1}, wantErr: true},
		{name: "valid without keyword file", cfg: PorcupineConfig{AccessKey: "key", Sensitivity: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPorcupine(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, p.customKeywordAvailable())
			assert.NoError(t, p.Close(), "closing an unopened classifier is a no-op")
		})
	}
}

func TestPorcupine_CustomKeywordAvailable(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPorcupine(PorcupineConfig{AccessKey: "key", KeywordPath: dir + "/missing.ppn", Sensitivity: 0.5}, nil)
	require.NoError(t, err)
	assert.False(t, p.customKeywordAvailable())

	p.cfg.KeywordPath = dir
	assert.True(t, p.customKeywordAvailable())
}
