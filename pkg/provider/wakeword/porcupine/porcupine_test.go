package porcupine_test

import (
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword/porcupine"
)

// testAccessKey returns the Picovoice access key for integration tests. If
// PORCUPINE_ACCESS_KEY is unset the test is skipped.
func testAccessKey(t *testing.T) string {
	t.Helper()
	k := os.Getenv("PORCUPINE_ACCESS_KEY")
	if k == "" {
		t.Skip("PORCUPINE_ACCESS_KEY not set; skipping porcupine test")
	}
	return k
}

func TestNew_MissingAccessKey(t *testing.T) {
	t.Parallel()

	_, err := porcupine.New(wakeword.Config{Keywords: []string{"jarvis"}, Sensitivity: 0.5})
	if !errors.Is(err, porcupine.ErrMissingAccessKey) {
		t.Fatalf("err = %v, want ErrMissingAccessKey", err)
	}
}

func TestNew_UnknownKeyword(t *testing.T) {
	t.Parallel()

	_, err := porcupine.New(wakeword.Config{AccessKey: "x", Keywords: []string{"abracadabra"}, Sensitivity: 0.5})
	if err == nil {
		t.Fatal("expected error for unknown keyword")
	}
}

func TestDetector_SilenceHasNoKeyword(t *testing.T) {
	key := testAccessKey(t)

	d, err := porcupine.New(wakeword.Config{AccessKey: key, Keywords: []string{"jarvis"}, Sensitivity: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	for range 20 {
		idx, err := d.Process(make([]int16, d.FrameLength()))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if idx != wakeword.NoKeyword {
			t.Fatalf("keyword %d detected in silence", idx)
		}
	}
	if _, err := d.Process(make([]int16, d.FrameLength()-1)); err == nil {
		t.Error("expected frame size error")
	}
}
