package audio

import (
	"context"
	"io"
)

// PCMSource replays recorded samples frame by frame, e.g. to run the wake word
// engine over a WAV file
type PCMSource struct {
	pcm []int16
	pos int
}

// NewPCMSource wraps pcm
func NewPCMSource(pcm []int16) *PCMSource {
	return &PCMSource{pcm: pcm}
}

// ReadFrame returns the next n samples, or io.EOF once fewer than n remain
func (s *PCMSource) ReadFrame(ctx context.Context, n int) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 || s.pos+n > len(s.pcm) {
		return nil, io.EOF
	}

	frame := s.pcm[s.pos : s.pos+n]
	s.pos += n
	return frame, nil
}

// Position returns the number of samples consumed so far
func (s *PCMSource) Position() int {
	return s.pos
}
