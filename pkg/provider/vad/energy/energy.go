// Package energy provides a dependency-free [vad.Engine] that classifies
// frames by their normalised RMS level.
//
// A session switches to speech when a frame's level reaches SpeechThreshold
// and back to silence when it falls below SilenceThreshold. Levels between the
// two keep the previous decision, which suppresses flicker on breathy speech.
package energy

import (
	"fmt"
	"math"

	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

const (
	defaultSpeechThreshold  = 0.02
	defaultSilenceThreshold = 0.01
)

// Engine creates energy VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg. Zero thresholds are replaced by defaults tuned for
// a close-talking microphone.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy vad: invalid frame geometry %d Hz / %d ms", cfg.SampleRate, cfg.FrameSizeMs)
	}
	speech, silence := cfg.SpeechThreshold, cfg.SilenceThreshold
	if speech == 0 {
		speech = defaultSpeechThreshold
	}
	if silence == 0 {
		silence = min(defaultSilenceThreshold, speech)
	}
	if speech < 0 || speech > 1 || silence < 0 || silence > speech {
		return nil, fmt.Errorf("energy vad: thresholds must satisfy 0 <= silence (%g) <= speech (%g) <= 1", silence, speech)
	}
	return &session{
		frameN:  cfg.FrameSamples(),
		speech:  speech,
		silence: silence,
	}, nil
}

type session struct {
	frameN   int
	speech   float64
	silence  float64
	speaking bool
}

// IsSpeech implements [vad.SessionHandle].
func (s *session) IsSpeech(frame []int16) (bool, error) {
	if len(frame) != s.frameN {
		return false, vad.ErrFrameSize("energy vad", len(frame), s.frameN)
	}
	level := Level(frame)
	switch {
	case level >= s.speech:
		s.speaking = true
	case level < s.silence:
		s.speaking = false
	}
	return s.speaking, nil
}

func (s *session) Reset()       { s.speaking = false }
func (s *session) Close() error { return nil }

// Level returns the RMS of frame normalised to [0, 1] against full scale.
func Level(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(frame))) / 32768
}
