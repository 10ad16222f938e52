package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

const (
	watchBase = `
server:
  log_level: info
segmenter:
  speech_trigger_frames: 8
providers:
  wakeword: {name: porcupine}
  stt: {name: whisper}
`
	watchQuieter = `
server:
  log_level: debug
segmenter:
  speech_trigger_frames: 5
providers:
  wakeword: {name: porcupine}
  stt: {name: whisper}
`
	watchNewListener = `
server:
  listen_addr: ":9000"
  log_level: info
segmenter:
  speech_trigger_frames: 8
providers:
  wakeword: {name: porcupine}
  stt: {name: whisper}
`
	watchBroken = `
server:
  log_level: bananas
`
)

type reload struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

// newManualWatcher returns a watcher that only reloads on Check, plus the
// reloads it has reported.
func newManualWatcher(t *testing.T, initial string) (*config.Watcher, string, chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jarvis.yaml")
	rewrite(t, path, initial)

	got := make(chan reload, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		got <- reload{old, new, d}
	}, config.WithInterval(-1))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path, got
}

// rewrite replaces the file and moves its mtime forward so coarse file
// system clocks still register the edit.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	bump(t, path)
}

var bumps atomic.Int64

func bump(t *testing.T, path string) {
	t.Helper()
	ts := time.Now().Add(time.Duration(bumps.Add(1)) * time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		edit        string
		wantApplied bool
		wantErr     string
		check       func(t *testing.T, r reload)
	}{
		{
			name:        "hot reloadable edit",
			edit:        watchQuieter,
			wantApplied: true,
			check: func(t *testing.T, r reload) {
				if r.old.Server.LogLevel != config.LogInfo || r.new.Server.LogLevel != config.LogDebug {
					t.Errorf("log level %q -> %q", r.old.Server.LogLevel, r.new.Server.LogLevel)
				}
				if !r.diff.LogLevelChanged || !r.diff.SegmenterChanged || len(r.diff.RestartRequired) != 0 {
					t.Errorf("diff = %+v", r.diff)
				}
			},
		},
		{
			name:        "listener edit needs restart",
			edit:        watchNewListener,
			wantApplied: true,
			check: func(t *testing.T, r reload) {
				if len(r.diff.RestartRequired) == 0 {
					t.Errorf("diff = %+v, want a restart-required field", r.diff)
				}
			},
		},
		{
			name:    "invalid edit is skipped",
			edit:    watchBroken,
			wantErr: "log_level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, path, got := newManualWatcher(t, watchBase)

			rewrite(t, path, tc.edit)
			applied, err := w.Check()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Check err = %v, want mention of %s", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if applied != tc.wantApplied {
				t.Fatalf("applied = %v, want %v", applied, tc.wantApplied)
			}

			if !tc.wantApplied {
				if len(got) != 0 {
					t.Errorf("callback fired %d times", len(got))
				}
				if w.Current().Server.LogLevel != config.LogInfo {
					t.Errorf("Current() = %+v, want the last valid config", w.Current().Server)
				}
				return
			}
			r := <-got
			tc.check(t, r)
			if w.Current() != r.new {
				t.Error("Current() does not return the reloaded config")
			}
		})
	}
}

func TestWatcher_UnchangedContent(t *testing.T) {
	t.Parallel()
	w, path, got := newManualWatcher(t, watchBase)

	if applied, err := w.Check(); applied || err != nil {
		t.Fatalf("Check on untouched file = %v, %v", applied, err)
	}

	bump(t, path)
	if applied, err := w.Check(); applied || err != nil {
		t.Fatalf("Check after touch = %v, %v", applied, err)
	}
	if len(got) != 0 {
		t.Errorf("callback fired %d times", len(got))
	}
}

func TestWatcher_RecoversAfterBrokenEdit(t *testing.T) {
	t.Parallel()
	w, path, got := newManualWatcher(t, watchBase)

	rewrite(t, path, watchBroken)
	if _, err := w.Check(); err == nil {
		t.Fatal("broken edit accepted")
	}
	rewrite(t, path, watchQuieter)
	if applied, err := w.Check(); !applied || err != nil {
		t.Fatalf("Check after fix = %v, %v", applied, err)
	}
	if r := <-got; r.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old config = %+v, want the one before the broken edit", r.old.Server)
	}
}

func TestWatcher_Polls(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jarvis.yaml")
	if err := os.WriteFile(path, []byte(watchBase), 0o600); err != nil {
		t.Fatal(err)
	}

	levels := make(chan config.LogLevel, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config, _ config.ConfigDiff) {
		levels <- new.Server.LogLevel
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	later := time.Now().Add(time.Minute)
	if err := os.WriteFile(path, []byte(watchQuieter), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	select {
	case lvl := <-levels:
		if lvl != config.LogDebug {
			t.Errorf("reloaded level = %q, want debug", lvl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not pick up the edit")
	}

	w.Stop()
	w.Stop()
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher succeeded without a file")
	}
}
