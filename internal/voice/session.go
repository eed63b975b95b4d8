// Package voice runs the spoken conversation: it listens to the microphone while the
// wake word gate is open, cuts utterances with the VAD and hands each one to a turn
// worker that transcribes, asks the agent and speaks the reply.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethanbaker/melissa/internal/audio"
	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/speech"
	"github.com/ethanbaker/melissa/internal/stores/session"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config
const (
	DefaultMinSpeech           = 500 * time.Millisecond
	DefaultMaxUtterance        = 30 * time.Second
	DefaultSessionTimeout      = 10 * time.Minute
	DefaultMessageGroupTimeout = 5 * time.Minute
	DefaultLearnTimeout        = 30 * time.Second
	DefaultPreRollFrames       = 5
	DefaultGreeting            = "Hi, I'm Melissa. How can I help you today?"

	// learnTextLimit caps how much of a reply is sent for fact extraction
	learnTextLimit = 500
)

// FrameSource delivers fixed-size PCM frames
type FrameSource interface {
	ReadFrame(ctx context.Context, n int) ([]int16, error)
}

// Player plays 16-bit PCM
type Player interface {
	Play(ctx context.Context, pcm []byte) error
	Stop()
}

// Pauser is implemented by the wake word detector
type Pauser interface {
	Pause()
	Resume()
}

// Learner stores what can be learned from an exchange
type Learner interface {
	LearnFromConversation(ctx context.Context, userMessage, assistantResponse string) string
}

// SessionStore creates the conversation sessions replies are recorded in
type SessionStore interface {
	CreateSession(ctx context.Context, userID, channel string) (*session.Session, error)
	History(id uuid.UUID) *session.History
}

// Config tunes the listening loop
type Config struct {
	SampleRate          int           // defaults to audio.SampleRate
	FrameLength         int           // defaults to audio.DefaultFrameLength
	MinSpeech           time.Duration // shorter utterances are ignored
	MaxUtterance        time.Duration // longer utterances are cut and sent
	PreRollFrames       int           // frames kept from before speech was detected
	SessionTimeout      time.Duration // a session older than this is replaced
	MessageGroupTimeout time.Duration // a pause longer than this starts a new session
	LearnTimeout        time.Duration
	UserID              string
	Greeting            string // spoken on start, "" to stay quiet
	WakeWordEnabled     bool   // when false the gate is held open
}

func (c *Config) setDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.SampleRate
	}
	if c.FrameLength <= 0 {
		c.FrameLength = audio.DefaultFrameLength
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = DefaultMinSpeech
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.PreRollFrames < 0 {
		c.PreRollFrames = 0
	} else if c.PreRollFrames == 0 {
		c.PreRollFrames = DefaultPreRollFrames
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MessageGroupTimeout <= 0 {
		c.MessageGroupTimeout = DefaultMessageGroupTimeout
	}
	if c.LearnTimeout <= 0 {
		c.LearnTimeout = DefaultLearnTimeout
	}
	if c.UserID == "" {
		c.UserID = recall.DefaultUserID
	}
}

// Hooks observe the conversation
type Hooks struct {
	// OnTranscribed is called with every final transcript
	OnTranscribed func(text string)

	// OnItemAdded is called when a message joins the conversation
	OnItemAdded func(role, text string)

	// OnTurn is called when a turn finishes
	OnTurn func(TurnResult)
}

// Options holds the session's collaborators. Synthesizer, Player, Detector and
// Learner are optional.
type Options struct {
	Gate        *wakeword.Gate
	Source      FrameSource
	VAD         *audio.VAD
	Transcriber speech.Transcriber
	Responder   agent.Responder
	Sessions    SessionStore
	Synthesizer speech.Synthesizer
	Player      Player
	Detector    Pauser
	Learner     Learner
	Logger      *zap.Logger
	Hooks       Hooks
	Clock       func() time.Time
}

// utterance is a finished stretch of speech
type utterance struct {
	pcm []int16
}

// Session is the voice conversation loop
type Session struct {
	cfg   Config
	opts  Options
	hooks Hooks

	logger *zap.Logger
	now    func() time.Time

	// busy is set from the moment an utterance is queued until its reply has been
	// spoken; frames are dropped meanwhile so the assistant does not hear itself
	busy  atomic.Bool
	ended atomic.Bool

	mu          sync.Mutex
	history     *session.History
	createdAt   time.Time
	lastMessage time.Time

	learning sync.WaitGroup
	turns    atomic.Int64
}

// New validates the collaborators and creates a session
func New(cfg Config, opts Options) (*Session, error) {
	switch {
	case opts.Gate == nil:
		return nil, errors.New("voice session requires a gate")
	case opts.Source == nil:
		return nil, errors.New("voice session requires an audio source")
	case opts.Transcriber == nil:
		return nil, errors.New("voice session requires a transcriber")
	case opts.Responder == nil:
		return nil, errors.New("voice session requires a responder")
	case opts.Sessions == nil:
		return nil, errors.New("voice session requires a session store")
	}

	cfg.setDefaults()
	if opts.VAD == nil {
		opts.VAD = audio.NewVAD(audio.DefaultVADConfig())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Session{
		cfg:    cfg,
		opts:   opts,
		hooks:  opts.Hooks,
		logger: opts.Logger.With(zap.String("component", "voice")),
		now:    opts.Clock,
	}, nil
}

// Turns returns the number of completed turns
func (s *Session) Turns() int64 {
	return s.turns.Load()
}

// CurrentSession returns the id of the conversation session in use, if any
func (s *Session) CurrentSession() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history == nil {
		return uuid.Nil, false
	}
	return s.history.ID(), true
}

// Run listens until ctx is cancelled or the audio source is exhausted. Background
// learning started by the session finishes before Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.learning.Wait()

	if !s.cfg.WakeWordEnabled {
		s.opts.Gate.Activate()
	}

	s.logger.Info("voice session started",
		zap.Bool("wake_word", s.cfg.WakeWordEnabled),
		zap.Duration("gate_timeout", s.opts.Gate.Timeout()),
	)

	turns := make(chan utterance, 1)
	if s.cfg.Greeting != "" {
		s.busy.Store(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.greet(gctx)
		for u := range turns {
			s.runTurn(gctx, u)
		}
		return nil
	})
	g.Go(func() error {
		defer close(turns)
		return s.listen(gctx, turns)
	})

	err := g.Wait()
	s.logger.Info("voice session stopped", zap.Int64("turns", s.Turns()))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listening reports whether frames should be processed right now
func (s *Session) listening() bool {
	if s.busy.Load() {
		return false
	}
	if !s.cfg.WakeWordEnabled {
		return true
	}
	return s.opts.Gate.IsActive()
}

// listen is the frame loop. It never blocks on a turn.
func (s *Session) listen(ctx context.Context, turns chan<- utterance) error {
	vad := s.opts.VAD
	maxSamples := int(s.cfg.MaxUtterance.Seconds() * float64(s.cfg.SampleRate))

	var (
		buf     []int16
		preRoll [][]int16
	)

	flush := func() {
		pcm := buf
		buf = nil
		vad.Reset()

		if d := audio.PCMDuration(len(pcm), s.cfg.SampleRate); d < s.cfg.MinSpeech {
			s.logger.Debug("utterance too short", zap.Duration("duration", d))
			return
		}

		s.busy.Store(true)
		select {
		case turns <- utterance{pcm: pcm}:
		default:
			s.busy.Store(false)
			s.logger.Warn("turn worker busy, dropping utterance")
		}
	}

	for {
		frame, err := s.opts.Source.ReadFrame(ctx, s.cfg.FrameLength)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, audio.ErrCaptureClosed) {
				if len(buf) > 0 {
					flush()
				}
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}

		if !s.listening() {
			if len(buf) > 0 || vad.InSpeech() {
				s.logger.Debug("gate closed, dropping partial utterance")
				buf = nil
				vad.Reset()
			}
			preRoll = preRoll[:0]
			continue
		}

		if vad.IsSpeech(frame) {
			s.opts.Gate.Extend()
			if len(buf) == 0 {
				for _, f := range preRoll {
					buf = append(buf, f...)
				}
				preRoll = preRoll[:0]
			}
			buf = append(buf, frame...)
			if len(buf) >= maxSamples {
				flush()
			}
			continue
		}

		if len(buf) > 0 {
			flush()
			continue
		}

		if s.cfg.PreRollFrames > 0 {
			if len(preRoll) == s.cfg.PreRollFrames {
				preRoll = append(preRoll[:0], preRoll[1:]...)
			}
			preRoll = append(preRoll, frame)
		}
	}
}
