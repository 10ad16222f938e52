package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Host abstracts the audio backend.
type Host interface {
	// Devices enumerates input devices in a stable order.
	Devices() ([]Device, error)

	// Open prepares a signed 16-bit input stream on dev. onData is invoked
	// from the backend's callback thread with interleaved little-endian PCM;
	// it must not block.
	Open(dev Device, cfg StreamConfig, onData func(pcm []byte)) (Stream, error)
}

// Stream is an opened but not necessarily running input stream.
type Stream interface {
	// Format reports the rate and channel count the backend actually chose.
	Format() audio.Format
	Start() error
	Close() error

	// Stopped is closed when the backend stops a started stream on its own,
	// for example because the device was unplugged.
	Stopped() <-chan struct{}
}

// Option configures a [Capture].
type Option func(*Capture)

// WithLogger sets the logger used for capture diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capture) {
		if l != nil {
			c.log = l
		}
	}
}

// Capture pumps one input device into a [audio.FrameBuffer] for as long as
// [Capture.Run] is active. It is the only writer of the buffer.
type Capture struct {
	host Host
	buf  *audio.FrameBuffer
	sel  Selection
	log  *slog.Logger

	// Callback-private state. The backend delivers buffers from one thread.
	format    audio.Format
	resampler *audio.Resampler
	mono      []int16
	out       []int16

	fail     chan error
	failOnce sync.Once

	device       atomic.Pointer[string]
	lastDelivery atomic.Int64
	samples      atomic.Uint64
}

// New returns a Capture that writes into buf from the device chosen by sel.
func New(host Host, buf *audio.FrameBuffer, sel Selection, opts ...Option) *Capture {
	c := &Capture{
		host: host,
		buf:  buf,
		sel:  sel,
		log:  slog.Default(),
		fail: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run selects and opens the device, starts the stream, and blocks until ctx
// is done or the stream fails. Every failure is returned as a *[DeviceError]
// after being logged; the caller decides whether the process continues.
func (c *Capture) Run(ctx context.Context) error {
	err := c.run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("capture stopped", "err", err)
	}
	return err
}

func (c *Capture) run(ctx context.Context) error {
	devices, err := c.host.Devices()
	if err != nil {
		return &DeviceError{Op: "enumerate", Err: err}
	}
	dev, err := SelectDevice(devices, c.sel)
	if err != nil {
		return &DeviceError{Op: "select", Err: err}
	}
	c.device.Store(&dev.Name)

	cfg := Negotiate(dev)
	stream, err := c.host.Open(dev, cfg, c.onData)
	if err != nil {
		return &DeviceError{Op: "open", Device: dev.Name, Err: err}
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			c.log.Warn("capture: close stream", "device", dev.Name, "err", cerr)
		}
	}()

	if err := c.configure(stream.Format()); err != nil {
		return &DeviceError{Op: "configure", Device: dev.Name, Err: err}
	}
	if err := stream.Start(); err != nil {
		return &DeviceError{Op: "start", Device: dev.Name, Err: err}
	}

	c.log.Info("capture started",
		"device", dev.Name,
		"index", dev.Index,
		"native", c.format.String(),
		"resample_ratio", c.resampler.Ratio(),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.fail:
		return &DeviceError{Op: "stream", Device: dev.Name, Err: err}
	case <-stream.Stopped():
		return &DeviceError{Op: "stream", Device: dev.Name, Err: ErrStreamStopped}
	}
}

// configure fixes the stream format and builds the resampler. It must run
// before the stream is started.
func (c *Capture) configure(f audio.Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	rs, err := audio.NewResampler(f.SampleRate)
	if err != nil {
		return err
	}
	c.format = f
	c.resampler = rs
	return nil
}

// onData runs on the backend's callback thread. It never blocks.
func (c *Capture) onData(pcm []byte) {
	if c.resampler == nil {
		return
	}
	c.mono = audio.DownmixBytes(c.mono[:0], pcm, c.format.Channels)
	c.out = c.resampler.Process(c.out[:0], c.mono)

	if err := c.buf.PushSamples(c.out); err != nil {
		c.failOnce.Do(func() { c.fail <- err })
		return
	}
	c.samples.Add(uint64(len(c.out)))
	c.lastDelivery.Store(time.Now().UnixNano())
}

// Device returns the name of the selected device, or "" before selection.
func (c *Capture) Device() string {
	if p := c.device.Load(); p != nil {
		return *p
	}
	return ""
}

// LastDelivery returns when the most recent buffer reached the frame buffer.
// The zero time means nothing has been delivered yet.
func (c *Capture) LastDelivery() time.Time {
	ns := c.lastDelivery.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Samples returns the number of analysis samples pushed so far.
func (c *Capture) Samples() uint64 { return c.samples.Load() }
