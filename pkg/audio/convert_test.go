package audio_test

import (
	"bytes"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

func TestBytesSamplesRoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.BytesToSamples(audio.SamplesToBytes(in))
	if !slices.Equal(got, in) {
		t.Errorf("got %v, want %v", got, in)
	}

	// Odd trailing byte is ignored.
	odd := append(audio.SamplesToBytes([]int16{7}), 0xff)
	if got := audio.BytesToSamples(odd); !slices.Equal(got, []int16{7}) {
		t.Errorf("odd input = %v, want [7]", got)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"mono passthrough", []int16{1, 2, 3}, 1, []int16{1, 2, 3}},
		{"stereo takes left", []int16{1, 100, 2, 200, 3, 300}, 2, []int16{1, 2, 3}},
		{"no averaging", []int16{10, -10, 20, -20}, 2, []int16{10, 20}},
		{"six channels", []int16{1, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0}, 6, []int16{1, 2}},
		{"partial frame dropped", []int16{1, 9, 2}, 2, []int16{1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.Downmix(nil, tc.in, tc.channels); !slices.Equal(got, tc.want) {
				t.Errorf("Downmix = %v, want %v", got, tc.want)
			}
			pcm := audio.SamplesToBytes(tc.in)
			if got := audio.DownmixBytes(nil, pcm, tc.channels); !slices.Equal(got, tc.want) {
				t.Errorf("DownmixBytes = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPad(t *testing.T) {
	t.Parallel()

	short := []int16{5, 6}
	got := audio.Pad(short, 5)
	if !slices.Equal(got, []int16{5, 6, 0, 0, 0}) {
		t.Errorf("Pad = %v", got)
	}

	long := seq(0, 10)
	if got := audio.Pad(long, 5); len(got) != 10 {
		t.Errorf("Pad shortened input to %d", len(got))
	}
}

func TestFrameSamplesAndDurations(t *testing.T) {
	t.Parallel()

	if got := audio.FrameSamples(30); got != 480 {
		t.Errorf("FrameSamples(30) = %d, want 480", got)
	}
	if got := audio.SamplesFor(1200 * time.Millisecond); got != 19200 {
		t.Errorf("SamplesFor(1.2s) = %d, want 19200", got)
	}
	if got := audio.DurationOf(8000); got != 500*time.Millisecond {
		t.Errorf("DurationOf(8000) = %v, want 500ms", got)
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tc := range tests {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestWAVFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "utterance.wav")
	in := seq(-200, 400)
	if err := audio.WriteWAVFile(path, in); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if clip.Format != audio.Analysis {
		t.Errorf("Format = %v, want %v", clip.Format, audio.Analysis)
	}
	if !slices.Equal(clip.Samples, in) {
		t.Errorf("samples differ after round trip")
	}
}

func TestWAVBytes(t *testing.T) {
	t.Parallel()

	in := seq(0, 960)
	data, err := audio.WAVBytes(in, 48000)
	if err != nil {
		t.Fatalf("WAVBytes: %v", err)
	}
	if len(data) != 44+2*len(in) {
		t.Errorf("len = %d, want %d", len(data), 44+2*len(in))
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.Format != (audio.Format{SampleRate: 48000, Channels: 1}) {
		t.Errorf("Format = %v", clip.Format)
	}
	if !slices.Equal(clip.Samples, in) {
		t.Error("samples differ after round trip")
	}
}

func TestClip_ToAnalysis(t *testing.T) {
	t.Parallel()

	stereo48k := audio.Clip{
		Format:  audio.Format{SampleRate: 48000, Channels: 2},
		Samples: make([]int16, 48000*2),
	}
	got, err := stereo48k.ToAnalysis()
	if err != nil {
		t.Fatalf("ToAnalysis: %v", err)
	}
	if got.Format != audio.Analysis {
		t.Errorf("Format = %v", got.Format)
	}
	if n := len(got.Samples); n < audio.SampleRate-1 || n > audio.SampleRate+1 {
		t.Errorf("len = %d, want %d±1", n, audio.SampleRate)
	}
}
