package turn

import (
	"fmt"
	"sync/atomic"
)

// Phase is the externally visible state of the turn loop. Exactly one phase
// is active at a time and only the [Controller] changes it.
type Phase int32

const (
	// Idle is the initial and terminal phase of a session.
	Idle Phase = iota

	// Loading covers provider warm-up before the first wake-word frame.
	Loading

	// WakeListening waits for the wake word.
	WakeListening

	// Recording segments the utterance that follows the wake word.
	Recording

	// Processing transcribes the utterance and asks the language model.
	Processing

	// Speaking plays the synthesized answer.
	Speaking
)

var phaseNames = [...]string{
	Idle:          "idle",
	Loading:       "loading",
	WakeListening: "wake_listening",
	Recording:     "recording",
	Processing:    "processing",
	Speaking:      "speaking",
}

// String returns the lower snake case label used in events and metrics.
func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// MarshalText implements [encoding.TextMarshaler] so phases serialise as
// their labels.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePhase maps a label produced by [Phase.String] back to its phase.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return Idle, fmt.Errorf("turn: unknown phase %q", s)
}

// phaseCell holds the current phase for lock-free reads from other
// goroutines.
type phaseCell struct{ v atomic.Int32 }

func (c *phaseCell) load() Phase { return Phase(c.v.Load()) }

// swap stores p and returns the previous phase.
func (c *phaseCell) swap(p Phase) Phase { return Phase(c.v.Swap(int32(p))) }
