// Package audio holds the sample-level building blocks of the capture
// pipeline: the shared [FrameBuffer], the phase-accumulating [Resampler],
// PCM conversion helpers, and WAV file encoding.
//
// Everything downstream of the [Resampler] works on signed 16-bit mono
// samples at [SampleRate]. The rate is fixed for the lifetime of the process
// and is never re-validated per frame.
package audio
