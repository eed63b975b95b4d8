package audio

import "math"

// VADConfig tunes the energy thresholds of the VAD. Levels are RMS of samples
// normalized to [-1, 1].
type VADConfig struct {
	SpeechThreshold  float64 // level needed to start speech
	SilenceThreshold float64 // level below which speech may end
	SpeechFrames     int     // consecutive loud frames needed to start
	SilenceFrames    int     // consecutive quiet frames needed to end
}

// DefaultVADConfig suits 16kHz audio in 32ms frames
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     2,  // ~64ms to start
		SilenceFrames:    25, // ~800ms to end
	}
}

// VAD is an energy based voice activity detector. The separate start and end
// thresholds keep it from flickering on borderline frames.
type VAD struct {
	cfg          VADConfig
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewVAD creates a detector, filling zero fields from DefaultVADConfig
func NewVAD(cfg VADConfig) *VAD {
	def := DefaultVADConfig()
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = def.SpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		cfg.SilenceThreshold = min(def.SilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = def.SpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	return &VAD{cfg: cfg}
}

// IsSpeech feeds one frame and reports whether the speaker is currently talking
func (v *VAD) IsSpeech(pcm []int16) bool {
	level := RMS(pcm)

	if v.inSpeech {
		if level < v.cfg.SilenceThreshold {
			v.silenceCount++
			v.speechCount = 0
			if v.silenceCount >= v.cfg.SilenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
	} else {
		if level >= v.cfg.SpeechThreshold {
			v.speechCount++
			v.silenceCount = 0
			if v.speechCount >= v.cfg.SpeechFrames {
				v.inSpeech = true
				v.speechCount = 0
			}
		} else {
			v.speechCount = 0
		}
	}

	return v.inSpeech
}

// InSpeech reports the current state without feeding a frame
func (v *VAD) InSpeech() bool {
	return v.inSpeech
}

// Reset clears internal state
func (v *VAD) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

// RMS returns the root mean square of the samples normalized to [0, 1]
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}

	var sum float64
	for _, s := range pcm {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
