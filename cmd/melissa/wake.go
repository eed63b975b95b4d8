package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethanbaker/melissa/internal/audio"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var wakeFile string

var wakeCmd = &cobra.Command{
	Use:     "wake",
	Short:   "Test wake word detection on the microphone or a WAV file",
	GroupID: "assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		classifier, err := newClassifier()
		if err != nil {
			return err
		}

		if wakeFile != "" {
			pcm, rate, err := audio.ReadWAV(wakeFile)
			if err != nil {
				return err
			}

			hits, err := scanPCM(ctx, classifier, pcm, rate)
			if err != nil {
				return err
			}
			return printDetections(os.Stdout, wakeFile, hits)
		}

		return runWakeLive(ctx, classifier)
	},
}

func init() {
	wakeCmd.Flags().StringVarP(&wakeFile, "file", "f", "", "16kHz mono WAV file to scan instead of the microphone")
}

// scanPCM runs the detector over recorded audio and returns the offsets of every
// detection
func scanPCM(ctx context.Context, classifier wakeword.Classifier, pcm []int16, sampleRate int) ([]time.Duration, error) {
	if sampleRate != audio.SampleRate {
		return nil, fmt.Errorf("sample rate %d not supported, want %d", sampleRate, audio.SampleRate)
	}

	source := audio.NewPCMSource(pcm)
	detector, err := wakeword.NewDetector(classifier, source, wakeword.DetectorOptions{Logger: logger})
	if err != nil {
		return nil, err
	}

	var hits []time.Duration
	detector.OnDetected = func() {
		hits = append(hits, audio.PCMDuration(source.Position(), sampleRate))
	}

	if err := detector.Run(ctx); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return hits, nil
}

func printDetections(w io.Writer, file string, hits []time.Duration) error {
	if jsonOutput {
		seconds := make([]float64, len(hits))
		for i, h := range hits {
			seconds[i] = h.Seconds()
		}
		data, err := json.MarshalIndent(map[string]any{"file": file, "detections": seconds}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(hits) == 0 {
		fmt.Fprintf(w, "No wake word detected in %s\n", file)
		return nil
	}
	fmt.Fprintf(w, "Wake word detected %d time(s) in %s\n", len(hits), file)
	for _, h := range hits {
		fmt.Fprintf(w, "  at %6.2fs\n", h.Seconds())
	}
	return nil
}

// runWakeLive listens on the microphone and prints every detection along with the
// gate it opens
func runWakeLive(ctx context.Context, classifier wakeword.Classifier) error {
	gate, err := wakeword.NewGate(cfg.GetDurationWithDefault("WAKE_WORD_TIMEOUT", wakeword.DefaultTimeout), wakeword.WithLogger(logger))
	if err != nil {
		return err
	}

	capture := audio.NewCapture(audio.CaptureConfig{}, logger)
	frames := capture.Subscribe(0)
	defer frames.Close()

	detector, err := wakeword.NewDetector(classifier, frames, wakeword.DetectorOptions{Logger: logger})
	if err != nil {
		return err
	}
	detector.OnDetected = func() {
		gate.Activate()
		status := gate.Status()
		fmt.Printf("[%s] wake word detected, listening until %s\n",
			status.ObservedAt.Format("15:04:05"), status.ActiveUntil.Format("15:04:05"))
	}

	fmt.Println("Say the wake word. Press Ctrl+C to exit.")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return capture.Run(ctx) })
	g.Go(func() error { return detector.Run(ctx) })
	return g.Wait()
}
