package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a decodable PCM WAV.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// Clip is a decoded block of interleaved PCM samples.
type Clip struct {
	Format  Format
	Samples []int16
}

// Mono returns the clip reduced to its first channel.
func (c Clip) Mono() Clip {
	if c.Format.Channels <= 1 {
		return c
	}
	return Clip{
		Format:  Format{SampleRate: c.Format.SampleRate, Channels: 1},
		Samples: Downmix(nil, c.Samples, c.Format.Channels),
	}
}

// ToAnalysis returns the clip as mono samples at [SampleRate].
func (c Clip) ToAnalysis() (Clip, error) {
	mono := c.Mono()
	if mono.Format.SampleRate == SampleRate {
		return mono, nil
	}
	rs, err := NewResampler(mono.Format.SampleRate)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Format: Analysis, Samples: rs.Process(nil, mono.Samples)}, nil
}

// EncodeWAV writes mono 16-bit samples at rate Hz to w as a PCM WAV file.
func EncodeWAV(w io.WriteSeeker, samples []int16, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// WAVBytes returns mono 16-bit samples at rate Hz encoded as an in-memory
// PCM WAV file.
func WAVBytes(samples []int16, rate int) ([]byte, error) {
	var sb seekBuffer
	if err := EncodeWAV(&sb, samples, rate); err != nil {
		return nil, err
	}
	return sb.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.buf))
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("audio: negative seek position %d", next)
	}
	b.pos = int(next)
	return next, nil
}

// WriteWAVFile stores analysis-rate samples at path, creating parent
// directories as needed.
func WriteWAVFile(path string, samples []int16) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audio: create %q: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	if err := EncodeWAV(f, samples, SampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeWAV reads a PCM WAV stream. 8, 24 and 32-bit sources are rescaled to
// 16 bits.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	depth := int(dec.BitDepth)
	if depth == 0 {
		return Clip{}, fmt.Errorf("%w: zero bit depth", ErrInvalidWAV)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned.
			samples[i] = int16((v - 128) << 8)
		case depth > 16:
			samples[i] = int16(v >> (depth - 16))
		default:
			samples[i] = int16(v)
		}
	}
	return Clip{
		Format:  Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
		Samples: samples,
	}, nil
}

// ReadWAVFile opens and decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}
