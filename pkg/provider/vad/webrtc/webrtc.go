// Package webrtc provides a [vad.Engine] backed by the WebRTC voice activity
// detector through github.com/maxhawkins/go-webrtc-vad.
//
// The detector accepts 8, 16, 32 or 48 kHz audio in 10, 20 or 30 ms frames and
// classifies each frame independently. Aggressiveness maps directly onto
// [vad.Mode].
package webrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtc-vad"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

var (
	validRates     = []int{8000, 16000, 32000, 48000}
	validFrameSize = []int{10, 20, 30}
)

// ErrClosed is returned by IsSpeech after Close.
var ErrClosed = errors.New("webrtc vad: session closed")

// Engine creates WebRTC VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and allocates a detector instance.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if !slices.Contains(validRates, cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc vad: unsupported sample rate %d; valid: %v", cfg.SampleRate, validRates)
	}
	if !slices.Contains(validFrameSize, cfg.FrameSizeMs) {
		return nil, fmt.Errorf("webrtc vad: unsupported frame size %dms; valid: %v", cfg.FrameSizeMs, validFrameSize)
	}
	if cfg.Mode < vad.ModeQuality || cfg.Mode > vad.ModeVeryAggressive {
		return nil, fmt.Errorf("webrtc vad: invalid mode %v", cfg.Mode)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(int(cfg.Mode)); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %v: %w", cfg.Mode, err)
	}
	return &session{
		det:    det,
		mode:   cfg.Mode,
		rate:   cfg.SampleRate,
		frameN: cfg.FrameSamples(),
	}, nil
}

type session struct {
	mu     sync.Mutex
	det    *webrtcvad.VAD
	mode   vad.Mode
	rate   int
	frameN int
	pcm    []byte
}

// IsSpeech implements [vad.SessionHandle].
func (s *session) IsSpeech(frame []int16) (bool, error) {
	if len(frame) != s.frameN {
		return false, vad.ErrFrameSize("webrtc vad", len(frame), s.frameN)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return false, ErrClosed
	}
	s.pcm = append(s.pcm[:0], audio.SamplesToBytes(frame)...)
	active, err := s.det.Process(s.rate, s.pcm)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return active, nil
}

// Reset swaps in a fresh detector so the adaptive noise estimate starts over.
// On allocation failure the current detector is kept.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return
	}
	det, err := webrtcvad.New()
	if err != nil {
		slog.Warn("webrtc vad: reset failed, keeping detector", "err", err)
		return
	}
	if err := det.SetMode(int(s.mode)); err != nil {
		slog.Warn("webrtc vad: reset failed, keeping detector", "err", err)
		return
	}
	s.det = det
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.det = nil
	return nil
}
