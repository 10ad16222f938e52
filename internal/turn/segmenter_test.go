package turn_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/jarvis/internal/turn"
	"github.com/MrWong99/jarvis/pkg/audio"
	vadmock "github.com/MrWong99/jarvis/pkg/provider/vad/mock"
)

// frame returns n samples all equal to v.
func frame(v int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

// loudIsSpeech classifies any frame with a non-zero first sample as speech.
func loudIsSpeech(f []int16) bool { return len(f) > 0 && f[0] != 0 }

func segCfg(k, preRoll int, silenceSec float64) turn.SegmenterConfig {
	return turn.SegmenterConfig{
		FrameDurationMs:         30,
		SpeechTriggerFrames:     k,
		PreRollFrames:           preRoll,
		SilenceThresholdSeconds: silenceSec,
	}
}

func TestSilenceFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sec     float64
		frameMs int
		want    int
	}{
		{1, 30, 34},
		{1, 10, 100},
		{0.5, 20, 25},
		{0.1, 30, 5},
		{0, 10, 5},
		{0.16, 30, 6},
		{0.12, 30, 5},
		{0.04, 10, 5},
		{0.001, 30, 5},
	}
	for _, tc := range tests {
		if got := turn.SilenceFrames(tc.sec, tc.frameMs); got != tc.want {
			t.Errorf("SilenceFrames(%g, %d) = %d, want %d", tc.sec, tc.frameMs, got, tc.want)
		}
	}
}

func TestSegmenterConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     turn.SegmenterConfig
		wantErr bool
	}{
		{"valid", segCfg(8, 0, 1), false},
		{"zero frame", turn.SegmenterConfig{SpeechTriggerFrames: 8}, true},
		{"zero trigger", turn.SegmenterConfig{FrameDurationMs: 30}, true},
		{"negative pre-roll", segCfg(8, -1, 1), true},
		{"pre-roll shorter than trigger", segCfg(8, 3, 1), true},
		{"pre-roll equal to trigger", segCfg(8, 8, 1), false},
		{"pre-roll longer than trigger", segCfg(8, 12, 1), false},
		{"negative silence", segCfg(8, 0, -1), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSegmenter_TriggersOnKthSpeechFrame(t *testing.T) {
	t.Parallel()

	const k = 4
	seg, err := turn.NewSegmenter(segCfg(k, 0, 1), &vadmock.Session{Classify: loudIsSpeech})
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	n := audio.FrameSamples(30)

	for i := 1; i < k; i++ {
		if _, err := seg.Feed(frame(int16(i), n)); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if seg.State() != turn.Armed {
			t.Fatalf("state after %d speech frames = %v, want armed", i, seg.State())
		}
		if len(seg.Utterance()) != 0 {
			t.Fatalf("utterance not empty while armed")
		}
	}
	if _, err := seg.Feed(frame(k, n)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if seg.State() != turn.Triggered {
		t.Fatalf("state after %d speech frames = %v, want triggered", k, seg.State())
	}

	u := seg.Utterance()
	if len(u) != k*n {
		t.Fatalf("utterance length = %d, want %d", len(u), k*n)
	}
	for i := range k {
		if u[i*n] != int16(i+1) {
			t.Errorf("pre-roll frame %d starts with %d, want %d", i, u[i*n], i+1)
		}
	}
	if seg.PreRollLen() != 0 {
		t.Errorf("pre-roll not flushed: %d frames left", seg.PreRollLen())
	}
}

func TestSegmenter_SilenceResetsSpeechRun(t *testing.T) {
	t.Parallel()

	seg, _ := turn.NewSegmenter(segCfg(3, 0, 1), &vadmock.Session{Classify: loudIsSpeech})
	n := audio.FrameSamples(30)

	for _, v := range []int16{1, 2, 0, 3, 4} {
		seg.Feed(frame(v, n))
	}
	if seg.State() != turn.Armed {
		t.Fatalf("state = %v, want armed after interrupted run", seg.State())
	}
	if seg.PreRollLen() != 2 {
		t.Errorf("pre-roll = %d frames, want 2", seg.PreRollLen())
	}
	seg.Feed(frame(5, n))
	if seg.State() != turn.Triggered {
		t.Fatalf("state = %v, want triggered", seg.State())
	}
	if u := seg.Utterance(); u[0] != 3 || len(u) != 3*n {
		t.Errorf("utterance starts with %d (len %d), want 3 (len %d)", u[0], len(u), 3*n)
	}
}

func TestSegmenter_ClosesOnFthSilenceFrame(t *testing.T) {
	t.Parallel()

	// 0.1 s at 30 ms is floored to 5 frames.
	seg, _ := turn.NewSegmenter(segCfg(2, 0, 0.1), &vadmock.Session{Classify: loudIsSpeech})
	n := audio.FrameSamples(30)
	seg.Feed(frame(1, n))
	seg.Feed(frame(1, n))

	// Four silent frames, then speech resets the run.
	for range 4 {
		if done, _ := seg.Feed(frame(0, n)); done {
			t.Fatal("closed before the hangover expired")
		}
	}
	seg.Feed(frame(1, n))
	for i := 1; i <= 5; i++ {
		done, err := seg.Feed(frame(0, n))
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if done != (i == 5) {
			t.Fatalf("silence frame %d: done = %v", i, done)
		}
	}
	if seg.State() != turn.Closed {
		t.Fatalf("state = %v, want closed", seg.State())
	}
	if want := (2 + 4 + 1 + 5) * n; len(seg.Utterance()) != want {
		t.Errorf("utterance length = %d, want %d", len(seg.Utterance()), want)
	}
	if done, _ := seg.Feed(frame(1, n)); !done || len(seg.Utterance()) != (2+4+1+5)*n {
		t.Error("feeding a closed segmenter changed it")
	}
}

func TestSegmenter_PreRollDecoupledFromTrigger(t *testing.T) {
	t.Parallel()

	n := audio.FrameSamples(30)

	t.Run("shorter than trigger is rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := turn.NewSegmenter(segCfg(8, 3, 1), &vadmock.Session{Classify: loudIsSpeech}); err == nil {
			t.Fatal("NewSegmenter accepted a pre-roll that would drop trigger frames")
		}
	})

	t.Run("equal to trigger keeps every confirming frame", func(t *testing.T) {
		t.Parallel()
		seg, err := turn.NewSegmenter(segCfg(8, 8, 1), &vadmock.Session{Classify: loudIsSpeech})
		if err != nil {
			t.Fatalf("NewSegmenter: %v", err)
		}
		for v := int16(1); v <= 8; v++ {
			seg.Feed(frame(v, n))
		}
		for range 40 {
			if done, _ := seg.Feed(frame(0, n)); done {
				break
			}
		}
		u := seg.Utterance()
		if want := (8 + 34) * n; len(u) != want {
			t.Fatalf("utterance length = %d, want %d", len(u), want)
		}
		for i := range 8 {
			if u[i*n] != int16(i+1) {
				t.Fatalf("frame %d starts with %d, want %d", i, u[i*n], i+1)
			}
		}
	})

	t.Run("longer than trigger keeps lead-in", func(t *testing.T) {
		t.Parallel()
		seg, _ := turn.NewSegmenter(segCfg(2, 5, 1), &vadmock.Session{Classify: loudIsSpeech})
		for _, v := range []int16{0, 0, 0, 0, 7, 8} {
			seg.Feed(frame(v, n))
		}
		if seg.State() != turn.Triggered {
			t.Fatalf("state = %v", seg.State())
		}
		u := seg.Utterance()
		if len(u) != 5*n {
			t.Fatalf("utterance length = %d, want %d", len(u), 5*n)
		}
		if u[3*n] != 7 || u[4*n] != 8 || u[0] != 0 {
			t.Errorf("unexpected pre-roll content")
		}
	})
}

func TestSegmenter_VADError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	seg, _ := turn.NewSegmenter(segCfg(2, 0, 1), &vadmock.Session{Err: boom})
	_, err := seg.Feed(frame(1, 480))

	var ce *turn.ClassifierError
	if !errors.As(err, &ce) || ce.Source != "vad" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want vad ClassifierError wrapping boom", err)
	}
}

// End-to-end endpointing: 30 ms frames, K=8, 1 s hangover. Eight speech frames
// followed by forty silent frames yield 8+34 frames.
func TestSegmenter_Record_EndToEnd(t *testing.T) {
	t.Parallel()

	n := audio.FrameSamples(30)
	buf := audio.NewFrameBuffer(audio.SampleRate * 2)
	for range 8 {
		buf.PushSamples(frame(1000, n))
	}
	for range 40 {
		buf.PushSamples(frame(0, n))
	}

	seg, _ := turn.NewSegmenter(segCfg(8, 0, 1), &vadmock.Session{Classify: loudIsSpeech})
	u, err := seg.Record(context.Background(), buf, turn.NewToken())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if want := (8 + 34) * 480; len(u) != want {
		t.Fatalf("utterance length = %d, want %d", len(u), want)
	}
	if !slices.Equal(u[:8*n], frame(1000, 8*n)) {
		t.Error("utterance does not start with the trigger frames")
	}
	if buf.Len() != 6*n {
		t.Errorf("left %d samples in buffer, want %d", buf.Len(), 6*n)
	}
}

// endless delivers silence forever and stops tok after stopAt frames.
type endless struct {
	tok    *turn.Token
	stopAt int64
	takes  atomic.Int64
}

func (e *endless) Take(ctx context.Context, n int) ([]int16, error) {
	if e.takes.Add(1) == e.stopAt {
		e.tok.Stop()
	}
	return make([]int16, n), nil
}

func TestSegmenter_Record_CancelWithinCheckPeriod(t *testing.T) {
	t.Parallel()

	tok := turn.NewToken()
	src := &endless{tok: tok, stopAt: 37}
	seg, _ := turn.NewSegmenter(segCfg(8, 0, 1), &vadmock.Session{})

	_, err := seg.Record(context.Background(), src, tok)
	if !errors.Is(err, turn.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if got := src.takes.Load(); got > 37+turn.DefaultCheckEvery {
		t.Errorf("read %d frames after stop at 37", got)
	}
}

func TestSegmenter_Record_StalledSourceCancels(t *testing.T) {
	t.Parallel()

	tok := turn.NewToken()
	ctx, cancel := tok.Context(context.Background())
	defer cancel()
	seg, _ := turn.NewSegmenter(segCfg(8, 0, 1), &vadmock.Session{})

	done := make(chan error, 1)
	go func() {
		_, err := seg.Record(ctx, audio.NewFrameBuffer(1024), tok)
		done <- err
	}()
	tok.Stop()
	if err := <-done; !errors.Is(err, turn.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}
