// Package mock provides a test double for the stt package interface.
//
// Use Provider to return controlled Transcript values and inspect which
// utterances were submitted:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "what time is it"}}
//	tr, _ := p.Transcribe(ctx, samples, stt.Options{Language: "en"})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []int16
	// Opts is the Options passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Results is exhausted.
	Result stt.Transcript

	// Results, when non-empty, is consumed one entry per call before falling
	// back to Result.
	Results []stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Samples: slices.Clone(samples), Opts: opts})
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r, nil
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
