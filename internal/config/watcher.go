package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc receives a reloaded config together with its predecessor and
// the difference between the two.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// fileStamp identifies one version of the config file on disk.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher polls a config file and hands every valid change to a
// [ChangeFunc]. Edits that fail to parse or validate are logged and
// skipped; the last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	// checkMu serialises Check so the ticker and manual reloads never
	// race on the same edit.
	checkMu sync.Mutex

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval (default 5s). A negative interval
// disables polling; changes are then picked up only by [Watcher.Check].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d != 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. The initial load must
// succeed; onChange may be nil.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, stamp, err := readStamped(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp

	if w.interval > 0 {
		go w.loop()
	}
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config watcher: reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Check re-reads the file once. It reports whether a new config was
// applied. A file whose mtime and size are unchanged is not read; a file
// rewritten with identical bytes is read but not applied.
func (w *Watcher) Check() (bool, error) {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", w.path, err)
	}

	w.mu.Lock()
	prev := w.stamp
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) && info.Size() == prev.size {
		return false, nil
	}

	cfg, stamp, err := readStamped(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if stamp.sum == prev.sum {
		w.stamp = stamp
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.stamp = cfg, stamp
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"log_level", d.LogLevelChanged,
		"segmenter", d.SegmenterChanged,
		"assistant", d.AssistantChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg, d)
	}
	return true, nil
}

// readStamped parses and validates path and returns the config with the
// stamp of the bytes it was parsed from.
func readStamped(path string) (*Config, fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
