package assistant

import (
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// History keeps the recent conversation sent to the LLM as context.
//
// It enforces both a maximum message count and a maximum age. Entries that
// exceed either limit are evicted on every [History.Add] and are never
// returned by [History.Recent].
//
// All methods are safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []entry
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
}

type entry struct {
	msg llm.Message
	at  time.Time
}

// NewHistory returns a history that retains at most maxSize messages. A
// maxAge of zero disables expiry.
func NewHistory(maxSize int, maxAge time.Duration) *History {
	return &History{
		entries: make([]entry, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Add appends messages stamped with the current time.
func (h *History) Add(msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	at := h.now()
	for _, m := range msgs {
		h.entries = append(h.entries, entry{msg: m, at: at})
	}
	h.evict()
}

// Recent returns the retained messages in chronological order.
func (h *History) Recent() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.evict()
	out := make([]llm.Message, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evict()
	return len(h.entries)
}

// Reset forgets the whole conversation.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]entry, 0, h.maxSize)
}

// Resize changes the limits and evicts immediately.
func (h *History) Resize(maxSize int, maxAge time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxSize = maxSize
	h.maxAge = maxAge
	h.evict()
}

// evict drops expired and surplus entries. Must be called with h.mu held.
//
// Survivors are copied to a fresh backing array so evicted messages can be
// garbage collected.
func (h *History) evict() {
	start := 0
	if h.maxAge > 0 {
		cutoff := h.now().Add(-h.maxAge)
		for start < len(h.entries) && h.entries[start].at.Before(cutoff) {
			start++
		}
	}
	keep := h.entries[start:]
	if len(keep) > h.maxSize {
		keep = keep[len(keep)-max(h.maxSize, 0):]
	}
	if len(keep) < len(h.entries) {
		fresh := make([]entry, len(keep), max(h.maxSize, len(keep)))
		copy(fresh, keep)
		h.entries = fresh
	}
}
