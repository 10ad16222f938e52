// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame decisions and inspect the frames that were
// classified.
//
// Example:
//
//	sess := &mock.Session{Script: []bool{true, true, false}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script holds the decision for each successive IsSpeech call. Once it is
	// exhausted Default is returned.
	Script []bool

	// Default is returned after Script runs out.
	Default bool

	// Classify, when set, decides each frame instead of Script.
	Classify func(frame []int16) bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// Frames records a copy of every classified frame.
	Frames [][]int16

	// ResetCount is the number of Reset calls.
	ResetCount int

	// CloseCount is the number of Close calls.
	CloseCount int
}

// IsSpeech records the frame and returns the next scripted decision.
func (s *Session) IsSpeech(frame []int16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	n := len(s.Frames)
	s.Frames = append(s.Frames, slices.Clone(frame))
	switch {
	case s.Classify != nil:
		return s.Classify(frame), nil
	case n < len(s.Script):
		return s.Script[n], nil
	default:
		return s.Default, nil
	}
}

// Reset increments ResetCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close increments CloseCount.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Calls returns the number of IsSpeech calls that reached classification.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
