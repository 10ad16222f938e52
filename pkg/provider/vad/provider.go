// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier (WebRTC VAD, an energy
// detector, or a model) and hands out per-stream sessions. Each session owns
// its detector state so independent streams never interfere.
//
// Classification is synchronous: IsSpeech returns as soon as the frame has
// been scored, which keeps it usable inside the segmentation loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is used by one goroutine at a time.
package vad

import (
	"fmt"
	"strings"
)

// Mode selects how aggressively non-speech is filtered. Higher modes reject
// more borderline frames as silence.
type Mode int

const (
	// ModeQuality favours detecting speech over rejecting noise.
	ModeQuality Mode = iota

	// ModeLowBitrate is a middle ground tuned for narrowband audio.
	ModeLowBitrate

	// ModeAggressive rejects more noise at the cost of clipping quiet speech.
	ModeAggressive

	// ModeVeryAggressive rejects the most noise.
	ModeVeryAggressive
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "quality"
	case ModeLowBitrate:
		return "lowbitrate"
	case ModeAggressive:
		return "aggressive"
	case ModeVeryAggressive:
		return "veryaggressive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string to a [Mode]. Matching ignores case,
// spaces, dashes and underscores, so "very_aggressive" is accepted. The empty
// string yields [ModeQuality].
func ParseMode(s string) (Mode, error) {
	norm := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
	switch norm {
	case "", "quality":
		return ModeQuality, nil
	case "lowbitrate":
		return ModeLowBitrate, nil
	case "aggressive":
		return ModeAggressive, nil
	case "veryaggressive":
		return ModeVeryAggressive, nil
	}
	return ModeQuality, fmt.Errorf("vad: unknown mode %q; valid values: quality, lowbitrate, aggressive, veryaggressive", s)
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the rate in Hz of the frames passed to IsSpeech.
	SampleRate int

	// FrameSizeMs is the duration of each frame. Most detectors only accept
	// 10, 20 or 30 ms.
	FrameSizeMs int

	// Mode selects the aggressiveness for detectors that support it.
	Mode Mode

	// SpeechThreshold is the score at or above which a frame starts counting as
	// speech, for score-based detectors. Range: [0.0, 1.0].
	SpeechThreshold float64

	// SilenceThreshold is the score below which a speaking stream returns to
	// silence. Must be ≤ SpeechThreshold.
	SilenceThreshold float64
}

// FrameSamples returns the number of samples per frame.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// SessionHandle is an active VAD session for a single audio stream. Reset
// clears detector state without closing the session.
type SessionHandle interface {
	// IsSpeech classifies one frame of mono 16-bit samples at the session's
	// SampleRate and FrameSizeMs. A wrong frame length is an error.
	IsSpeech(frame []int16) (bool, error)

	// Reset clears accumulated detection state.
	Reset()

	// Close releases the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
// NewSession may be called concurrently.
type Engine interface {
	// NewSession creates a session ready to classify frames. It fails when the
	// configuration is not supported by the backend.
	NewSession(cfg Config) (SessionHandle, error)
}

// ErrFrameSize builds the error returned for frames of the wrong length.
func ErrFrameSize(backend string, got, want int) error {
	return fmt.Errorf("%s: frame has %d samples, want %d", backend, got, want)
}
