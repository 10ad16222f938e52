// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify that
// the correct Voice and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{SynthesizeChunks: [][]byte{pcm1, pcm2}}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// SynthesizeCall records a single SynthesizeStream invocation once its text
// channel has been drained.
type SynthesizeCall struct {
	// Voice is the Voice passed to SynthesizeStream.
	Voice tts.Voice
	// Fragments holds every text fragment read from the input channel.
	Fragments []string
}

// Text returns the fragments joined together.
func (c SynthesizeCall) Text() string { return strings.Join(c.Fragments, "") }

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks is emitted on every audio channel after the text channel
	// has been drained.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream.
	SynthesizeErr error

	// ListVoicesResult and ListVoicesErr are returned by ListVoices.
	ListVoicesResult []tts.Voice
	ListVoicesErr    error

	calls []SynthesizeCall
}

// SynthesizeStream drains text in the background, records it, then emits
// SynthesizeChunks and closes the audio channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	err := p.SynthesizeErr
	chunks := slices.Clone(p.SynthesizeChunks)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		call := SynthesizeCall{Voice: voice}
		for frag := range text {
			call.Fragments = append(call.Fragments, frag)
		}
		p.mu.Lock()
		p.calls = append(p.calls, call)
		p.mu.Unlock()
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns the completed synthesis calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
