package turn

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// DefaultCheckEvery is how many frames the gate and the segmenter process
// between two looks at the session token.
const DefaultCheckEvery = 100

// Source delivers analysis samples in arrival order. [audio.FrameBuffer]
// satisfies it.
type Source interface {
	// Take blocks until n samples are available or ctx is done.
	Take(ctx context.Context, n int) ([]int16, error)
}

// Gate blocks until the keyword spotter hears the wake word.
type Gate struct {
	src        Source
	det        wakeword.Detector
	checkEvery int
}

// NewGate returns a gate reading frames of det.FrameLength() samples from
// src. checkEvery ≤ 0 selects [DefaultCheckEvery].
func NewGate(src Source, det wakeword.Detector, checkEvery int) *Gate {
	if checkEvery <= 0 {
		checkEvery = DefaultCheckEvery
	}
	return &Gate{src: src, det: det, checkEvery: checkEvery}
}

// Wait reads frames until a keyword is detected and returns its index. It
// returns [ErrCancelled] once tok is stopped, a *[ClassifierError] when the
// detector fails, and any error from the source unchanged.
func (g *Gate) Wait(ctx context.Context, tok *Token) (int, error) {
	n := g.det.FrameLength()
	for frames := 0; ; frames++ {
		if frames%g.checkEvery == 0 && !tok.Running() {
			return wakeword.NoKeyword, ErrCancelled
		}
		frame, err := g.src.Take(ctx, n)
		if err != nil {
			return wakeword.NoKeyword, takeErr(ctx, tok, err)
		}
		idx, err := g.det.Process(frame)
		if err != nil {
			return wakeword.NoKeyword, &ClassifierError{Source: "wakeword", Err: err}
		}
		if idx >= 0 {
			return idx, nil
		}
	}
}

// takeErr maps a context error caused by a stopped token to [ErrCancelled].
func takeErr(ctx context.Context, tok *Token, err error) error {
	if errors.Is(err, context.Canceled) && !tok.Running() {
		return ErrCancelled
	}
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("turn: read frame: %w", err)
}
