package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethanbaker/melissa/internal/audio"
	"github.com/ethanbaker/melissa/internal/speech"
	"github.com/ethanbaker/melissa/internal/stores/session"
	"github.com/ethanbaker/melissa/pkg/agent"
	"go.uber.org/zap"
)

// Turn stages, reported in TurnResult.Stage when a turn fails
const (
	StageTranscribe = "transcribe"
	StageSession    = "session"
	StageRespond    = "respond"
	StageSpeak      = "speak"
)

const apologyText = "Sorry, I ran into a problem answering that."

// TurnResult describes one finished turn
type TurnResult struct {
	Transcript string
	Reply      string
	Ended      bool
	Stage      string // set when Err is not nil
	Err        error
	Duration   time.Duration
}

// greet speaks the greeting, if any, and opens the floor
func (s *Session) greet(ctx context.Context) {
	defer s.busy.Store(false)

	if s.cfg.Greeting == "" {
		return
	}
	if err := s.speak(ctx, s.cfg.Greeting); err != nil {
		s.logger.Warn("failed to greet", zap.Error(err))
	}
	s.itemAdded("assistant", s.cfg.Greeting)
}

// runTurn handles one utterance: transcribe, respond, learn and speak
func (s *Session) runTurn(ctx context.Context, u utterance) {
	defer s.busy.Store(false)

	start := s.now()
	result := s.turn(ctx, u)
	result.Duration = s.now().Sub(start)
	s.turns.Add(1)

	if result.Err != nil {
		s.logger.Error("turn failed", zap.String("stage", result.Stage), zap.Error(result.Err))
	}
	if s.hooks.OnTurn != nil {
		s.hooks.OnTurn(result)
	}
}

func (s *Session) turn(ctx context.Context, u utterance) TurnResult {
	var result TurnResult

	s.logger.Debug("transcribing utterance",
		zap.Duration("duration", audio.PCMDuration(len(u.pcm), s.cfg.SampleRate)))

	text, err := s.opts.Transcriber.Transcribe(ctx, u.pcm, s.cfg.SampleRate)
	if errors.Is(err, speech.ErrNoSpeech) {
		s.logger.Debug("no clear speech in utterance")
		return result
	}
	if err != nil {
		return TurnResult{Stage: StageTranscribe, Err: err}
	}

	text = strings.TrimSpace(text)
	if len([]rune(text)) < 2 {
		s.logger.Debug("transcript too short", zap.String("text", text))
		return result
	}
	result.Transcript = text

	s.logger.Info("user said", zap.String("text", text))
	if s.hooks.OnTranscribed != nil {
		s.hooks.OnTranscribed(text)
	}

	history, err := s.currentHistory(ctx)
	if err != nil {
		result.Stage, result.Err = StageSession, err
		return result
	}

	s.ended.Store(false)
	reply, err := s.opts.Responder.Respond(agent.WithConversation(ctx, s), history, text)
	if err != nil {
		result.Stage, result.Err = StageRespond, err
		if ctx.Err() == nil {
			_ = s.speak(ctx, apologyText)
		}
		return result
	}
	result.Reply = reply
	s.touch()

	s.logger.Info("assistant replied", zap.String("text", reply))
	s.itemAdded("assistant", reply)
	s.learn(ctx, text, reply)

	if s.ended.Load() {
		result.Ended = true
		s.endConversation()
		return result
	}

	if reply != "" {
		if err := s.speak(ctx, reply); err != nil {
			result.Stage, result.Err = StageSpeak, err
		}
	}

	// follow-ups don't need the wake word again, unless the window ran out mid-turn
	if s.cfg.WakeWordEnabled {
		s.opts.Gate.Extend()
	} else {
		s.opts.Gate.Activate()
	}
	return result
}

// itemAdded reports a conversation message to the hook
func (s *Session) itemAdded(role, text string) {
	if s.hooks.OnItemAdded != nil {
		s.hooks.OnItemAdded(role, text)
	}
}

// learn extracts memories from the exchange in the background
func (s *Session) learn(ctx context.Context, userText, reply string) {
	if s.opts.Learner == nil || reply == "" {
		return
	}

	if r := []rune(reply); len(r) > learnTextLimit {
		reply = string(r[:learnTextLimit])
	}

	s.learning.Add(1)
	go func() {
		defer s.learning.Done()

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LearnTimeout)
		defer cancel()

		outcome := s.opts.Learner.LearnFromConversation(lctx, userText, reply)
		s.logger.Debug("auto-learning finished", zap.String("outcome", outcome))
	}()
}

// speak synthesizes and plays text with the wake word detector paused. Without a
// synthesizer or player the text is only logged.
func (s *Session) speak(ctx context.Context, text string) error {
	if s.opts.Synthesizer == nil || s.opts.Player == nil {
		s.logger.Info("speech output disabled", zap.String("text", text))
		return nil
	}

	pcm, err := s.opts.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	if s.opts.Detector != nil {
		s.opts.Detector.Pause()
		defer s.opts.Detector.Resume()
	}
	return s.opts.Player.Play(ctx, pcm)
}

// currentHistory returns the session history to record the turn in, starting a new
// session when the current one is too old or has been idle too long
func (s *Session) currentHistory(ctx context.Context) (*session.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	needNew := s.history == nil ||
		now.Sub(s.createdAt) > s.cfg.SessionTimeout ||
		now.Sub(s.lastMessage) > s.cfg.MessageGroupTimeout

	if !needNew {
		return s.history, nil
	}

	sess, err := s.opts.Sessions.CreateSession(ctx, s.cfg.UserID, session.ChannelVoice)
	if err != nil {
		return nil, err
	}

	s.history = s.opts.Sessions.History(sess.ID)
	s.createdAt = now
	s.lastMessage = now
	s.logger.Info("created new session", zap.String("session_id", sess.ID.String()))

	return s.history, nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastMessage = s.now()
	s.mu.Unlock()
}

// endConversation closes the gate and forgets the current session so the next wake
// word starts a fresh one
func (s *Session) endConversation() {
	if s.cfg.WakeWordEnabled {
		s.opts.Gate.Deactivate()
	}

	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()

	s.logger.Info("conversation ended")
}

// Say speaks text immediately. Tools use it through agent.Conversation.
func (s *Session) Say(ctx context.Context, text string) error {
	s.itemAdded("assistant", text)
	return s.speak(ctx, text)
}

// End finishes the conversation after the current turn
func (s *Session) End(_ context.Context) error {
	s.ended.Store(true)
	return nil
}

var _ agent.Conversation = (*Session)(nil)
