package audio

import "fmt"

// Resampler converts a mono stream from an arbitrary input rate to
// [SampleRate] by duplicating or dropping samples. It keeps a running phase
// so consecutive buffers from the same stream line up without drift.
//
// No anti-aliasing filter is applied. Keyword spotting, VAD and STT all
// tolerate the resulting artifacts.
//
// A Resampler belongs to a single stream and is not safe for concurrent use.
type Resampler struct {
	inputRate int
	ratio     float64
	phase     float64
}

// NewResampler returns a Resampler for input sampled at inputRate Hz. The
// ratio is fixed for the lifetime of the Resampler.
func NewResampler(inputRate int) (*Resampler, error) {
	if inputRate <= 0 {
		return nil, fmt.Errorf("audio: invalid input sample rate %d", inputRate)
	}
	return &Resampler{
		inputRate: inputRate,
		ratio:     float64(inputRate) / SampleRate,
	}, nil
}

// InputRate returns the rate the Resampler was created for.
func (r *Resampler) InputRate() int { return r.inputRate }

// Ratio returns inputRate / [SampleRate].
func (r *Resampler) Ratio() float64 { return r.ratio }

// Passthrough reports whether the input already runs at [SampleRate].
func (r *Resampler) Passthrough() bool { return r.inputRate == SampleRate }

// Process appends the resampled form of in to dst and returns the extended
// slice. For every input sample it emits that sample while the phase is below
// one, advancing the phase by the ratio each time, then steps the phase back
// by one.
func (r *Resampler) Process(dst, in []int16) []int16 {
	if r.Passthrough() {
		return append(dst, in...)
	}
	for _, s := range in {
		for r.phase < 1 {
			dst = append(dst, s)
			r.phase += r.ratio
		}
		r.phase--
	}
	return dst
}
