// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. SynthesizeStream accepts a channel of
// text fragments and returns a channel of raw 16 kHz mono PCM as it becomes
// available, so playback can start before the whole answer is synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"strings"
	"unicode"
)

// Voice identifies a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Labels holds provider-specific voice attributes (accent, gender, ...).
	Labels map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits raw little-endian 16-bit PCM at 16 kHz mono.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early; callers should check
	// ctx.Err() to distinguish cancellation from provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Sentences feeds text into a closed channel one sentence at a time, which
// lets streaming backends start synthesis after the first sentence.
func Sentences(text string) <-chan string {
	parts := SplitSentences(text)
	ch := make(chan string, len(parts))
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	return ch
}

// SplitSentences breaks text after a newline, or after '.', '!' or '?' when
// followed by whitespace. Each returned sentence keeps its terminator and a trailing space
// so that concatenation restores the spacing.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if !strings.ContainsRune(".!?\n", r) {
			continue
		}
		if r != '\n' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s+" ")
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s+" ")
	}
	return out
}
