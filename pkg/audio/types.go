package audio

import (
	"fmt"
	"time"
)

// SampleRate is the fixed analysis rate in Hz. Capture resamples to it and
// every consumer of a [FrameBuffer] assumes it.
const SampleRate = 16000

// samplesPerMs is the number of analysis samples in one millisecond.
const samplesPerMs = SampleRate / 1000

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Analysis is the format every component downstream of capture works in.
var Analysis = Format{SampleRate: SampleRate, Channels: 1}

// FrameSamples returns the number of analysis samples in a frame of ms
// milliseconds.
func FrameSamples(ms int) int {
	return ms * samplesPerMs
}

// SamplesFor returns the number of analysis samples covering d, rounded down.
func SamplesFor(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}

// DurationOf returns the playback duration of n analysis samples.
func DurationOf(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}
