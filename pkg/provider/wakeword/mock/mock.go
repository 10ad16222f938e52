// Package mock provides a test double for [wakeword.Detector].
//
// Detector returns scripted keyword indices and records every frame it saw:
//
//	det := &mock.Detector{Frames: 512, WakeAt: 3}
//	idx, _ := det.Process(frame) // -1, -1, -1, 0, -1 ...
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// Detector is a mock implementation of wakeword.Detector.
type Detector struct {
	mu sync.Mutex

	// Frames is the value returned by FrameLength. Zero means 512.
	Frames int

	// WakeAt is the zero-based Process call that reports keyword 0. A negative
	// value never wakes.
	WakeAt int

	// WakeEvery, when positive, additionally reports keyword 0 on every
	// WakeEvery-th call.
	WakeEvery int

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// Seen records a copy of every processed frame.
	Seen [][]int16

	// CloseCount is the number of Close calls.
	CloseCount int
}

// FrameLength returns Frames, defaulting to 512.
func (d *Detector) FrameLength() int {
	if d.Frames == 0 {
		return 512
	}
	return d.Frames
}

// Process records the frame and returns 0 on the WakeAt-th call and on every
// WakeEvery-th call.
func (d *Detector) Process(frame []int16) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProcessErr != nil {
		return wakeword.NoKeyword, d.ProcessErr
	}
	n := len(d.Seen)
	d.Seen = append(d.Seen, slices.Clone(frame))
	if d.WakeAt >= 0 && n == d.WakeAt {
		return 0, nil
	}
	if d.WakeEvery > 0 && (n+1)%d.WakeEvery == 0 {
		return 0, nil
	}
	return wakeword.NoKeyword, nil
}

// Close increments CloseCount.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCount++
	return nil
}

// Calls returns the number of frames processed.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Seen)
}

var _ wakeword.Detector = (*Detector)(nil)
