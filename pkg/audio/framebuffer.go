package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBufferPoisoned is returned by every [FrameBuffer] operation after a panic
// occurred while the buffer's lock was held. The contents can no longer be
// trusted, so the buffer refuses further use.
var ErrBufferPoisoned = errors.New("audio: frame buffer poisoned")

// DefaultPollInterval is how often [FrameBuffer.Take] re-checks the buffer
// while waiting for enough samples.
const DefaultPollInterval = 10 * time.Millisecond

// BufferOption configures a [FrameBuffer].
type BufferOption func(*FrameBuffer)

// WithPollInterval overrides [DefaultPollInterval]. Non-positive values are
// ignored.
func WithPollInterval(d time.Duration) BufferOption {
	return func(b *FrameBuffer) {
		if d > 0 {
			b.poll = d
		}
	}
}

// FrameBuffer is a bounded FIFO of analysis samples with drop-oldest overflow.
//
// Exactly one writer (the capture callback) pushes and one reader at a time
// takes. Pushes never block: when the buffer is full the oldest sample is
// evicted and counted in [FrameBuffer.Overflow]. Critical sections only move
// data; no I/O happens under the lock.
type FrameBuffer struct {
	poll time.Duration

	mu       sync.Mutex
	ring     []int16
	head     int // index of the oldest sample
	size     int
	poisoned bool

	overflow atomic.Uint64
}

// NewFrameBuffer returns an empty buffer holding at most capacity samples.
// It panics if capacity is not positive.
func NewFrameBuffer(capacity int, opts ...BufferOption) *FrameBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("audio: frame buffer capacity must be positive, got %d", capacity))
	}
	b := &FrameBuffer{
		poll: DefaultPollInterval,
		ring: make([]int16, capacity),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cap returns the maximum number of samples the buffer holds.
func (b *FrameBuffer) Cap() int { return len(b.ring) }

// Len returns the number of buffered samples.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Overflow returns the total number of samples evicted to make room for newer
// ones since the buffer was created.
func (b *FrameBuffer) Overflow() uint64 { return b.overflow.Load() }

// Push appends one sample, evicting the oldest if the buffer is full.
func (b *FrameBuffer) Push(s int16) error {
	return b.locked(func() { b.push(s) })
}

// PushSamples appends samples in order with the same eviction rule as
// [FrameBuffer.Push].
func (b *FrameBuffer) PushSamples(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	return b.locked(func() {
		for _, s := range samples {
			b.push(s)
		}
	})
}

// Take blocks until at least n samples are buffered, then removes and returns
// the oldest n in arrival order. It re-checks every poll interval and returns
// early with ctx.Err() when ctx is done.
//
// Asking for more samples than the buffer can ever hold is an error rather
// than a permanent block.
func (b *FrameBuffer) Take(ctx context.Context, n int) ([]int16, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > len(b.ring) {
		return nil, fmt.Errorf("audio: take %d samples exceeds buffer capacity %d", n, len(b.ring))
	}

	var ticker *time.Ticker
	for {
		out, err := b.tryTake(n)
		if err != nil || out != nil {
			return out, err
		}
		if ticker == nil {
			ticker = time.NewTicker(b.poll)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset discards all buffered samples. The overflow counter is kept.
func (b *FrameBuffer) Reset() error {
	return b.locked(func() {
		b.head = 0
		b.size = 0
	})
}

// tryTake removes n samples if available. It returns a nil slice and nil
// error when fewer than n are buffered.
func (b *FrameBuffer) tryTake(n int) ([]int16, error) {
	var out []int16
	err := b.locked(func() {
		if b.size < n {
			return
		}
		out = make([]int16, n)
		first := copy(out, b.ring[b.head:min(b.head+n, len(b.ring))])
		copy(out[first:], b.ring[:n-first])
		b.head = (b.head + n) % len(b.ring)
		b.size -= n
	})
	return out, err
}

// push must be called with b.mu held.
func (b *FrameBuffer) push(s int16) {
	if b.size == len(b.ring) {
		b.head = (b.head + 1) % len(b.ring)
		b.size--
		b.overflow.Add(1)
	}
	b.ring[(b.head+b.size)%len(b.ring)] = s
	b.size++
}

// locked runs fn under the buffer lock. A panic inside fn poisons the buffer
// and is returned as an error wrapping [ErrBufferPoisoned].
func (b *FrameBuffer) locked(fn func()) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poisoned {
		return ErrBufferPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			b.poisoned = true
			err = fmt.Errorf("%w: %v", ErrBufferPoisoned, r)
		}
	}()
	fn()
	return nil
}
