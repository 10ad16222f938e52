// Package mock provides in-memory implementations of [capture.Host] and
// [playback.Player] for tests.
//
// All mocks are safe for concurrent use. They record calls so tests can assert
// on what was opened or played, and expose exported fields that control
// return values.
//
// Typical usage:
//
//	host := mock.NewHost(audio.Analysis, "USB Mic")
//	c := capture.New(host, buf, capture.Selection{Name: "usb"})
//	go c.Run(ctx)
//	<-host.Started()
//	host.Feed(audio.SamplesToBytes(samples))
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
)

// ─── Host ─────────────────────────────────────────────────────────────────────

// Host is a scripted [capture.Host]. Every opened stream reports Format and
// delivers whatever is passed to [Host.Feed].
type Host struct {
	// Format is reported by opened streams.
	Format audio.Format

	// DeviceList is returned by Devices.
	DeviceList []capture.Device

	// DevicesErr and OpenErr are returned by the respective calls when set.
	DevicesErr error
	OpenErr    error

	mu       sync.Mutex
	onData   func([]byte)
	started  chan struct{}
	running  bool
	current  *stream
	Opened   []capture.Device
	Requests []capture.StreamConfig
	Closed   int
}

var _ capture.Host = (*Host)(nil)

// NewHost returns a Host with one device per name.
func NewHost(format audio.Format, names ...string) *Host {
	h := &Host{Format: format, started: make(chan struct{})}
	for i, n := range names {
		h.DeviceList = append(h.DeviceList, capture.Device{Index: i, Name: n})
	}
	return h
}

// Devices implements [capture.Host].
func (h *Host) Devices() ([]capture.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.DeviceList, h.DevicesErr
}

// Open implements [capture.Host].
func (h *Host) Open(dev capture.Device, cfg capture.StreamConfig, onData func([]byte)) (capture.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	h.Opened = append(h.Opened, dev)
	h.Requests = append(h.Requests, cfg)
	h.onData = onData
	h.current = &stream{host: h, stopped: make(chan struct{})}
	return h.current, nil
}

// Started is closed once a stream has been started.
func (h *Host) Started() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started == nil {
		h.started = make(chan struct{})
	}
	return h.started
}

// markStarted closes the Started channel the first time any stream starts.
func (h *Host) markStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started == nil {
		h.started = make(chan struct{})
	}
	if !h.running {
		h.running = true
		close(h.started)
	}
}

// Feed delivers pcm to the running stream as one callback. It is a no-op
// before a stream is opened.
func (h *Host) Feed(pcm []byte) {
	h.mu.Lock()
	fn := h.onData
	h.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

// FeedSamples delivers samples as little-endian PCM.
func (h *Host) FeedSamples(samples []int16) {
	h.Feed(audio.SamplesToBytes(samples))
}

// Unplug stops the most recently opened stream as if its device had been
// removed.
func (h *Host) Unplug() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.current.stopOnce.Do(func() { close(h.current.stopped) })
	}
}

type stream struct {
	host     *Host
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *stream) Stopped() <-chan struct{} { return s.stopped }

func (s *stream) Format() audio.Format { return s.host.Format }

func (s *stream) Start() error {
	s.host.markStarted()
	return nil
}

func (s *stream) Close() error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.host.Closed++
	s.host.onData = nil
	return nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock [playback.Player] that drains and records every stream.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play after the stream has been consumed.
	PlayErr error

	// Played holds the PCM bytes of each Play call in order.
	Played [][]byte

	// OnPlay, when set, is called at the start of every Play.
	OnPlay func()
}

var _ playback.Player = (*Player)(nil)

// Play implements [playback.Player].
func (p *Player) Play(ctx context.Context, pcm io.Reader) error {
	p.mu.Lock()
	hook := p.OnPlay
	p.mu.Unlock()
	if hook != nil {
		hook()
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, pcm); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, buf.Bytes())
	return p.PlayErr
}

// Calls returns the number of completed Play calls.
func (p *Player) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}
