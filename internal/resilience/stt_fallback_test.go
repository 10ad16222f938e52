package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Result: stt.Transcript{Text: "turn on the lights"}}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "whisper-native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	got, err := fb.Transcribe(context.Background(), make([]int16, 19200), stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "turn on the lights" {
		t.Fatalf("text = %q", got.Text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
	if primary.Calls[0].Opts.Language != "en" {
		t.Errorf("options not forwarded: %+v", primary.Calls[0].Opts)
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("model not loaded")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "hello"}}

	fb := NewSTTFallback(primary, "whisper-native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper", secondary)

	got, err := fb.Transcribe(context.Background(), make([]int16, 16000), stt.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "hello" {
		t.Fatalf("text = %q, want hello", got.Text)
	}
}

func TestSTTFallback_EmptyTranscriptIsNotFailure(t *testing.T) {
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "should not be used"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Transcribe(context.Background(), make([]int16, 16000), stt.Options{})
	if err != nil || got.Text != "" {
		t.Fatalf("got %q, %v; want empty transcript from primary", got.Text, err)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary called for an empty transcript")
	}
}

func TestSTTFallback_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &sttmock.Provider{Result: stt.Transcript{Text: "x"}}
	fb := NewSTTFallback(primary, "primary", FallbackConfig{})
	if _, err := fb.Transcribe(ctx, nil, stt.Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.CallCount() != 0 {
		t.Error("provider called with a cancelled context")
	}
}
