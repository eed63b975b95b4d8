package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethanbaker/melissa/internal/api"
	"github.com/ethanbaker/melissa/internal/audio"
	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/speech"
	"github.com/ethanbaker/melissa/internal/voice"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	listenNoWake bool
	listenAPI    bool
)

var listenCmd = &cobra.Command{
	Use:     "listen",
	Short:   "Run the voice assistant on the default microphone and speaker",
	GroupID: "assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Wait for interrupt signal to gracefully shut down the app
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runListen(ctx)
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenNoWake, "no-wake-word", false, "listen continuously without waiting for the wake word")
	listenCmd.Flags().BoolVar(&listenAPI, "api", false, "also serve the HTTP API (requires API_KEY)")
}

func runListen(ctx context.Context) error {
	log := logger.With(zap.String("component", "listen"))
	log.Info("starting voice assistant")

	c, err := newComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	wakeEnabled := cfg.GetBoolWithDefault("WAKE_WORD_ENABLED", true) && !listenNoWake

	// Audio devices
	capture := audio.NewCapture(audio.CaptureConfig{}, logger)
	c.metrics.RegisterGaugeFunc("audio_dropped_frames", "Audio frames dropped because a consumer fell behind",
		func() float64 { return float64(capture.Drops()) })

	player, err := audio.NewPlayer(audio.PlaybackSampleRate, logger)
	if err != nil {
		return err
	}

	sessionFrames := capture.Subscribe(0)
	defer sessionFrames.Close()

	// Wake word detection
	var detector *wakeword.Detector
	if wakeEnabled {
		classifier, err := newClassifier()
		if err != nil {
			return err
		}

		wakeFrames := capture.Subscribe(0)
		defer wakeFrames.Close()

		detector, err = wakeword.NewDetector(classifier, wakeFrames, wakeword.DetectorOptions{
			LoopDelay: cfg.GetDurationWithDefault("WAKE_WORD_LOOP_DELAY", 0),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		detector.OnDetected = func() {
			c.metrics.RecordDetection()
			c.gate.Activate()
		}
	} else {
		log.Info("wake word disabled, listening continuously")
	}

	opts := voice.Options{
		Gate:   c.gate,
		Source: sessionFrames,
		VAD: audio.NewVAD(audio.VADConfig{
			SpeechThreshold:  cfg.GetFloatWithDefault("VAD_SPEECH_THRESHOLD", 0),
			SilenceThreshold: cfg.GetFloatWithDefault("VAD_SILENCE_THRESHOLD", 0),
			SpeechFrames:     cfg.GetIntWithDefault("VAD_SPEECH_FRAMES", 0),
			SilenceFrames:    cfg.GetIntWithDefault("VAD_SILENCE_FRAMES", 0),
		}),
		Transcriber: speech.NewWhisper(c.openai, speech.WhisperConfig{
			Model:    cfg.Get("STT_MODEL"),
			Language: cfg.Get("STT_LANGUAGE"),
		}),
		Responder: c.runner,
		Sessions:  c.sessions,
		Synthesizer: speech.NewOpenAITTS(c.openai, speech.TTSConfig{
			Model: cfg.Get("TTS_MODEL"),
			Voice: cfg.Get("TTS_VOICE"),
			Speed: cfg.GetFloatWithDefault("TTS_SPEED", 0),
		}),
		Player: player,
		Logger: logger,
		Hooks: voice.Hooks{
			OnTurn: c.metrics.RecordTurn,
		},
	}
	if detector != nil {
		opts.Detector = detector
	}
	if c.memory.Available() {
		opts.Learner = c.memory
	}

	session, err := voice.New(voice.Config{
		MinSpeech:           cfg.GetDurationWithDefault("MIN_SPEECH", 0),
		MaxUtterance:        cfg.GetDurationWithDefault("MAX_UTTERANCE", 0),
		SessionTimeout:      cfg.GetDurationWithDefault("SESSION_TIMEOUT", 0),
		MessageGroupTimeout: cfg.GetDurationWithDefault("MESSAGE_GROUP_TIMEOUT", 0),
		UserID:              cfg.GetWithDefault("USER_ID", recall.DefaultUserID),
		Greeting:            cfg.GetWithDefault("GREETING", voice.DefaultGreeting),
		WakeWordEnabled:     wakeEnabled,
	}, opts)
	if err != nil {
		return err
	}

	c.janitor.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return capture.Run(ctx) })
	if detector != nil {
		g.Go(func() error { return detector.Run(ctx) })
	}
	g.Go(func() error { return session.Run(ctx) })
	if listenAPI {
		g.Go(func() error {
			return api.Start(ctx, api.Options{
				Config:    cfg,
				Logger:    logger,
				Gate:      c.gate,
				Sessions:  c.sessions,
				Responder: c.runner,
				Memory:    c.memory,
				Metrics:   c.metrics,
			})
		})
	}

	log.Info("voice assistant is running, press Ctrl+C to exit")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("voice assistant stopped: %w", err)
	}

	log.Info("voice assistant stopped", zap.Int64("turns", session.Turns()))
	return nil
}

// newClassifier builds the Porcupine classifier from PICOVOICE_* settings
func newClassifier() (*wakeword.Porcupine, error) {
	return wakeword.NewPorcupine(wakeword.PorcupineConfig{
		AccessKey:   cfg.Get("PICOVOICE_ACCESS_KEY"),
		KeywordPath: cfg.Get("WAKE_WORD_KEYWORD_PATH"),
		Sensitivity: float32(cfg.GetFloatWithDefault("WAKE_WORD_SENSITIVITY", wakeword.DefaultSensitivity)),
	}, logger)
}
