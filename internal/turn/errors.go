package turn

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by the gate and the segmenter when the session
// token was stopped. It is a normal outcome, not a failure.
var ErrCancelled = errors.New("turn: stopped by request")

// ClassifierError reports a failure of the keyword spotter or the VAD. It is
// fatal for the running session.
type ClassifierError struct {
	// Source is "wakeword" or "vad".
	Source string
	Err    error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("turn: %s classifier: %v", e.Source, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }
