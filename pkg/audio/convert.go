package audio

import "encoding/binary"

// BytesToSamples decodes little-endian signed 16-bit PCM. A trailing odd byte
// is ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// SamplesToBytes encodes samples as little-endian signed 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Downmix appends the first channel of every frame in interleaved to dst and
// returns the extended slice. Channels are not averaged: the stream is
// strided by the channel count. A trailing partial frame is dropped.
func Downmix(dst, interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return append(dst, interleaved...)
	}
	for i := 0; i+channels <= len(interleaved); i += channels {
		dst = append(dst, interleaved[i])
	}
	return dst
}

// DownmixBytes is [Downmix] over little-endian PCM bytes, avoiding an
// intermediate slice for the discarded channels.
func DownmixBytes(dst []int16, pcm []byte, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	stride := channels * 2
	for i := 0; i+stride <= len(pcm); i += stride {
		dst = append(dst, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	return dst
}

// Pad returns samples extended with trailing silence to at least n samples.
// The input is returned unchanged when it is already long enough.
func Pad(samples []int16, n int) []int16 {
	if len(samples) >= n {
		return samples
	}
	out := make([]int16, n)
	copy(out, samples)
	return out
}

// ToFloat32 converts samples to the [-1, 1) float range used by most speech
// models.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
