// Package porcupine provides a [wakeword.Detector] backed by Picovoice
// Porcupine through its official Go binding.
//
// Porcupine expects 16 kHz mono frames of exactly [pv.FrameLength] samples
// and needs a Picovoice access key.
package porcupine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// ErrMissingAccessKey is returned by New when no access key is configured.
var ErrMissingAccessKey = errors.New("porcupine: missing access key")

// Detector wraps an initialised Porcupine handle.
type Detector struct {
	mu     sync.Mutex
	handle *pv.Porcupine
	frameN int
}

var _ wakeword.Detector = (*Detector)(nil)

// New validates cfg and initialises a Porcupine instance.
func New(cfg wakeword.Config) (*Detector, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, ErrMissingAccessKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	handle := &pv.Porcupine{
		AccessKey:    cfg.AccessKey,
		ModelPath:    cfg.ModelPath,
		KeywordPaths: cfg.KeywordPaths,
	}
	for _, name := range cfg.Keywords {
		kw := pv.BuiltInKeyword(strings.ToLower(strings.TrimSpace(name)))
		if !kw.IsValid() {
			return nil, fmt.Errorf("porcupine: unknown built-in keyword %q", name)
		}
		handle.BuiltInKeywords = append(handle.BuiltInKeywords, kw)
	}
	n := len(handle.BuiltInKeywords) + len(handle.KeywordPaths)
	handle.Sensitivities = make([]float32, n)
	for i := range handle.Sensitivities {
		handle.Sensitivities[i] = float32(cfg.Sensitivity)
	}

	if err := handle.Init(); err != nil {
		return nil, fmt.Errorf("porcupine: init: %w", err)
	}
	return &Detector{handle: handle, frameN: pv.FrameLength}, nil
}

// FrameLength implements [wakeword.Detector].
func (d *Detector) FrameLength() int { return d.frameN }

// Process implements [wakeword.Detector].
func (d *Detector) Process(frame []int16) (int, error) {
	if len(frame) != d.frameN {
		return wakeword.NoKeyword, wakeword.ErrFrameSize("porcupine", len(frame), d.frameN)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return wakeword.NoKeyword, errors.New("porcupine: detector closed")
	}
	idx, err := d.handle.Process(frame)
	if err != nil {
		return wakeword.NoKeyword, fmt.Errorf("porcupine: process: %w", err)
	}
	return idx, nil
}

// Close implements [wakeword.Detector].
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return nil
	}
	err := d.handle.Delete()
	d.handle = nil
	return err
}
