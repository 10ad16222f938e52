package playback

import (
	"math"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Beep returns a sine tone at freq Hz lasting d, with short linear fades to
// avoid clicks. Amplitude is in [0, 1].
func Beep(freq float64, d time.Duration, amplitude float64) []int16 {
	n := audio.SamplesFor(d)
	fade := min(n/2, audio.SamplesFor(5*time.Millisecond))
	out := make([]int16, n)
	for i := range out {
		gain := amplitude
		switch {
		case i < fade:
			gain *= float64(i) / float64(fade)
		case i >= n-fade:
			gain *= float64(n-1-i) / float64(fade)
		}
		v := math.Sin(2 * math.Pi * freq * float64(i) / audio.SampleRate)
		out[i] = int16(v * gain * math.MaxInt16)
	}
	return out
}

// WakeSound returns the acknowledgement played on wake-word detection: the
// WAV at path converted to analysis format, or a short 880 Hz beep when path
// is empty.
func WakeSound(path string) ([]int16, error) {
	if path == "" {
		return Beep(880, 120*time.Millisecond, 0.4), nil
	}
	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, err
	}
	clip, err = clip.ToAnalysis()
	if err != nil {
		return nil, err
	}
	return clip.Samples, nil
}
