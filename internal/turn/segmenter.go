package turn

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// minSilenceFrames floors the hangover so very short frames cannot cut an
// utterance after a breath.
const minSilenceFrames = 5

// SegmenterConfig holds the endpointing parameters.
type SegmenterConfig struct {
	// FrameDurationMs is the VAD frame length. 10, 20 or 30 for WebRTC.
	FrameDurationMs int

	// SpeechTriggerFrames is the number of consecutive speech frames that
	// confirm the start of an utterance.
	SpeechTriggerFrames int

	// PreRollFrames is how many frames heard before confirmation are kept and
	// prepended to the utterance. Zero means SpeechTriggerFrames; any other
	// value must be at least SpeechTriggerFrames so the confirming frames
	// always reach the utterance.
	PreRollFrames int

	// SilenceThresholdSeconds is the hangover after which the utterance ends.
	SilenceThresholdSeconds float64

	// CheckEvery is the token polling period in frames. Zero means
	// [DefaultCheckEvery].
	CheckEvery int
}

// Validate reports invalid parameters.
func (c SegmenterConfig) Validate() error {
	var errs []error
	if c.FrameDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_duration_ms must be positive, got %d", c.FrameDurationMs))
	}
	if c.SpeechTriggerFrames <= 0 {
		errs = append(errs, fmt.Errorf("speech_trigger_frames must be positive, got %d", c.SpeechTriggerFrames))
	}
	switch {
	case c.PreRollFrames < 0:
		errs = append(errs, fmt.Errorf("pre_roll_frames must not be negative, got %d", c.PreRollFrames))
	case c.PreRollFrames > 0 && c.PreRollFrames < c.SpeechTriggerFrames:
		errs = append(errs, fmt.Errorf("pre_roll_frames %d is shorter than speech_trigger_frames %d", c.PreRollFrames, c.SpeechTriggerFrames))
	}
	if c.SilenceThresholdSeconds < 0 {
		errs = append(errs, fmt.Errorf("silence_threshold_seconds must not be negative, got %g", c.SilenceThresholdSeconds))
	}
	return errors.Join(errs...)
}

// FrameSamples returns the number of samples per VAD frame.
func (c SegmenterConfig) FrameSamples() int { return audio.FrameSamples(c.FrameDurationMs) }

// SilenceFrames returns the hangover in frames for this configuration.
func (c SegmenterConfig) SilenceFrames() int {
	return SilenceFrames(c.SilenceThresholdSeconds, c.FrameDurationMs)
}

func (c SegmenterConfig) preRoll() int {
	if c.PreRollFrames > 0 {
		return c.PreRollFrames
	}
	return c.SpeechTriggerFrames
}

// SilenceFrames converts a hangover in seconds to frames:
// max(5, ceil(seconds*1000/frameMs)).
func SilenceFrames(seconds float64, frameMs int) int {
	if frameMs <= 0 {
		return minSilenceFrames
	}
	n := int(math.Ceil(seconds * 1000 / float64(frameMs)))
	return max(minSilenceFrames, n)
}

// SegmentState is the position of a [Segmenter] in its state machine.
type SegmentState int

const (
	// Armed waits for sustained speech.
	Armed SegmentState = iota

	// Triggered accumulates every frame until the hangover expires.
	Triggered

	// Closed holds a finished utterance.
	Closed
)

func (s SegmentState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("SegmentState(%d)", int(s))
	}
}

// Segmenter cuts a single utterance out of a frame stream. A Segmenter is
// used for one recording attempt and then discarded.
type Segmenter struct {
	cfg       SegmenterConfig
	vad       vad.SessionHandle
	frameN    int
	silenceN  int
	preRollN  int
	state     SegmentState
	speechRun int
	silentRun int
	preRoll   [][]int16
	utterance []int16
}

// NewSegmenter returns an armed segmenter that classifies with sess.
func NewSegmenter(cfg SegmenterConfig, sess vad.SessionHandle) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("turn: segmenter: %w", err)
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = DefaultCheckEvery
	}
	return &Segmenter{
		cfg:      cfg,
		vad:      sess,
		frameN:   cfg.FrameSamples(),
		silenceN: cfg.SilenceFrames(),
		preRollN: cfg.preRoll(),
	}, nil
}

// State returns the current state.
func (s *Segmenter) State() SegmentState { return s.state }

// Utterance returns the samples accumulated so far. It is empty while the
// segmenter is armed.
func (s *Segmenter) Utterance() []int16 { return s.utterance }

// PreRollLen returns the number of frames waiting in the pre-roll.
func (s *Segmenter) PreRollLen() int { return len(s.preRoll) }

// Feed classifies one frame and advances the state machine. It reports true
// when the frame closed the utterance. Feeding a closed segmenter is a no-op.
func (s *Segmenter) Feed(frame []int16) (bool, error) {
	if s.state == Closed {
		return true, nil
	}
	speech, err := s.vad.IsSpeech(frame)
	if err != nil {
		return false, &ClassifierError{Source: "vad", Err: err}
	}

	switch s.state {
	case Armed:
		if !speech {
			s.speechRun = 0
			// A look-back longer than the trigger also keeps the quiet lead-in.
			if s.preRollN > s.cfg.SpeechTriggerFrames {
				s.remember(frame)
			} else {
				s.preRoll = s.preRoll[:0]
			}
			return false, nil
		}
		s.speechRun++
		s.remember(frame)
		if s.speechRun >= s.cfg.SpeechTriggerFrames {
			s.state = Triggered
			s.silentRun = 0
			for _, f := range s.preRoll {
				s.utterance = append(s.utterance, f...)
			}
			s.preRoll = nil
		}
	case Triggered:
		s.utterance = append(s.utterance, frame...)
		if speech {
			s.silentRun = 0
			return false, nil
		}
		s.silentRun++
		if s.silentRun >= s.silenceN {
			s.state = Closed
			return true, nil
		}
	}
	return false, nil
}

// remember appends frame to the pre-roll, evicting the oldest frame when it
// is full.
func (s *Segmenter) remember(frame []int16) {
	if len(s.preRoll) == s.preRollN {
		copy(s.preRoll, s.preRoll[1:])
		s.preRoll = s.preRoll[:len(s.preRoll)-1]
	}
	s.preRoll = append(s.preRoll, frame)
}

// Record reads frames from src until the utterance closes and returns it. It
// returns [ErrCancelled] once tok is stopped, discarding anything accumulated.
func (s *Segmenter) Record(ctx context.Context, src Source, tok *Token) ([]int16, error) {
	for frames := 0; ; frames++ {
		if frames%s.cfg.CheckEvery == 0 && !tok.Running() {
			return nil, ErrCancelled
		}
		frame, err := src.Take(ctx, s.frameN)
		if err != nil {
			return nil, takeErr(ctx, tok, err)
		}
		done, err := s.Feed(frame)
		if err != nil {
			return nil, err
		}
		if done {
			return s.utterance, nil
		}
	}
}
