// Package playback plays assistant audio: synthesized speech streamed from a
// TTS provider and short acknowledgement sounds.
//
// All audio handed to a [Player] is mono signed 16-bit little-endian PCM at
// [audio.SampleRate].
package playback

import (
	"bytes"
	"context"
	"io"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Player plays PCM to an output device.
type Player interface {
	// Play streams pcm to the device and blocks until it has been played out,
	// pcm fails, or ctx is done.
	Play(ctx context.Context, pcm io.Reader) error
}

// PlaySamples is a convenience wrapper that plays analysis-rate samples.
func PlaySamples(ctx context.Context, p Player, samples []int16) error {
	return p.Play(ctx, bytes.NewReader(audio.SamplesToBytes(samples)))
}

// ChanReader adapts a stream of PCM chunks to an [io.Reader]. Read blocks
// until a chunk arrives, returns [io.EOF] once the channel is closed and
// drained, and returns ctx.Err() when ctx is done first.
type ChanReader struct {
	ctx     context.Context
	ch      <-chan []byte
	pending []byte
	n       int64
}

// NewChanReader returns a reader over ch.
func NewChanReader(ctx context.Context, ch <-chan []byte) *ChanReader {
	return &ChanReader{ctx: ctx, ch: ch}
}

// Read implements io.Reader.
func (r *ChanReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case chunk, ok := <-r.ch:
			if !ok {
				return 0, io.EOF
			}
			r.pending = chunk
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.n += int64(n)
	return n, nil
}

// BytesRead returns the number of bytes handed out so far.
func (r *ChanReader) BytesRead() int64 { return r.n }
