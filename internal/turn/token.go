package turn

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a cooperative cancellation flag shared between the component that
// starts a session and the loops that run it. A Token starts running and can
// be stopped exactly once; it cannot be restarted.
//
// The zero value is not usable; create tokens with [NewToken].
type Token struct {
	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewToken returns a running token.
func NewToken() *Token {
	t := &Token{done: make(chan struct{})}
	t.running.Store(true)
	return t
}

// Running reports whether the session should keep going.
func (t *Token) Running() bool { return t.running.Load() }

// Stop clears the flag. It is safe to call from any goroutine and more than
// once.
func (t *Token) Stop() {
	t.once.Do(func() {
		t.running.Store(false)
		close(t.done)
	})
}

// Done is closed when the token is stopped.
func (t *Token) Done() <-chan struct{} { return t.done }

// Context derives a context from parent that is cancelled when the token is
// stopped. The returned cancel func must be called to release resources.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
