// Package wakeword defines the Detector interface for keyword spotting
// backends.
//
// A detector consumes fixed-length frames of 16 kHz mono samples and reports
// the index of the keyword heard in each frame, or -1 when none was. The frame
// length is fixed by the backend and exposed through FrameLength so the caller
// can size its reads.
//
// A Detector is driven by one goroutine at a time.
package wakeword

import "fmt"

// NoKeyword is returned by Process when the frame contains no keyword.
const NoKeyword = -1

// Detector is a streaming keyword spotter.
type Detector interface {
	// FrameLength is the exact number of samples Process expects.
	FrameLength() int

	// Process scores one frame. It returns the index of the detected keyword
	// (≥ 0) or [NoKeyword].
	Process(frame []int16) (int, error)

	// Close releases backend resources. Calling Close more than once is safe.
	Close() error
}

// Config holds the parameters for constructing a detector.
type Config struct {
	// AccessKey authenticates against the backend, if it needs one.
	AccessKey string

	// Keywords lists built-in keyword names, e.g. "jarvis".
	Keywords []string

	// KeywordPaths lists custom keyword model files. Porcupine loads them
	// before Keywords, so custom models take detection indices
	// 0..len(KeywordPaths)-1 and built-in keywords follow.
	KeywordPaths []string

	// Sensitivity in [0, 1] trades misses for false alarms. It applies to
	// every keyword.
	Sensitivity float64

	// ModelPath optionally overrides the backend's acoustic model.
	ModelPath string
}

// Validate reports configuration errors shared by all backends.
func (c Config) Validate() error {
	if len(c.Keywords)+len(c.KeywordPaths) == 0 {
		return fmt.Errorf("wakeword: at least one keyword or keyword path is required")
	}
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("wakeword: sensitivity %g out of range [0, 1]", c.Sensitivity)
	}
	return nil
}

// ErrFrameSize builds the error returned for frames of the wrong length.
func ErrFrameSize(backend string, got, want int) error {
	return fmt.Errorf("%s: frame has %d samples, want %d", backend, got, want)
}
