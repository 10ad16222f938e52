// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, a
// whisper-server instance, or a hosted API) behind a uniform batch interface:
// one complete utterance of 16 kHz mono samples goes in, one Transcript comes
// out. The turn controller segments speech itself, so providers never need to
// detect end of speech.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Options carries recognition hints for a single Transcribe call.
type Options struct {
	// Language is the language code for recognition (e.g., "en", "de"). An
	// empty string lets the provider auto-detect the language, if supported.
	Language string

	// InitialPrompt biases decoding towards the given vocabulary or style.
	// Providers that do not support prompting ignore it.
	InitialPrompt string
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding space.
	// It is empty when nothing intelligible was heard.
	Text string

	// Language is the language the provider recognised, if it reports one.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts samples (16 kHz mono) to text. It returns an error if
	// the backend fails or ctx is cancelled; an utterance with no recognisable
	// speech yields an empty Transcript and a nil error.
	Transcribe(ctx context.Context, samples []int16, opts Options) (Transcript, error)
}
