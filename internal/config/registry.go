package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	vad      map[string]func(ProviderEntry) (vad.Engine, error)
	wakeword map[string]func(ProviderEntry) (wakeword.Detector, error)
	stt      map[string]func(ProviderEntry) (stt.Provider, error)
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	tts      map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:      make(map[string]func(ProviderEntry) (vad.Engine, error)),
		wakeword: make(map[string]func(ProviderEntry) (wakeword.Detector, error)),
		stt:      make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:      make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// register stores factory under name. Subsequent calls with the same name
// overwrite the previous registration.
func register[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), name string, factory func(ProviderEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

// create instantiates the provider registered under entry.Name.
func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// RegisterWakeWord registers a wake-word detector factory under name.
func (r *Registry) RegisterWakeWord(name string, factory func(ProviderEntry) (wakeword.Detector, error)) {
	register(r, r.wakeword, name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	register(r, r.tts, name, factory)
}

// CreateVAD instantiates a VAD engine using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// CreateWakeWord instantiates a wake-word detector.
func (r *Registry) CreateWakeWord(entry ProviderEntry) (wakeword.Detector, error) {
	return create(r, r.wakeword, "wakeword", entry)
}

// CreateSTT instantiates an STT provider.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateLLM instantiates an LLM provider.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateTTS instantiates a TTS provider.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// Names returns the sorted provider names registered for kind, which is
// one of "vad", "wakeword", "stt", "llm" or "tts".
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "vad":
		return slices.Sorted(maps.Keys(r.vad))
	case "wakeword":
		return slices.Sorted(maps.Keys(r.wakeword))
	case "stt":
		return slices.Sorted(maps.Keys(r.stt))
	case "llm":
		return slices.Sorted(maps.Keys(r.llm))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts))
	}
	return nil
}
