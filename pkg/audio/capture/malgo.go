package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// MalgoHost is a [Host] backed by miniaudio through malgo. One MalgoHost owns
// one miniaudio context; call [MalgoHost.Close] when done.
type MalgoHost struct {
	ctx *malgo.AllocatedContext

	warnFormats sync.Once
}

var _ Host = (*MalgoHost)(nil)

// NewMalgoHost initialises a miniaudio context with automatic backend
// selection. Backend log lines are forwarded to slog at debug level.
func NewMalgoHost() (*MalgoHost, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("capture: init miniaudio context: %w", err)
	}
	return &MalgoHost{ctx: ctx}, nil
}

// Devices enumerates capture devices. Native formats are queried per device;
// a device whose details cannot be read is still listed without formats.
func (h *MalgoHost) Devices() ([]Device, error) {
	return h.list(malgo.Capture)
}

// OutputDevices enumerates playback devices, used for device listings.
func (h *MalgoHost) OutputDevices() ([]Device, error) {
	return h.list(malgo.Playback)
}

func (h *MalgoHost) list(kind malgo.DeviceType) ([]Device, error) {
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(infos))
	for i := range infos {
		id := infos[i].ID
		d := Device{
			Index:     i,
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
			handle:    &id,
		}
		full, err := h.ctx.DeviceInfo(kind, id, malgo.Shared)
		if err != nil {
			h.warnFormats.Do(func() {
				slog.Warn("capture: cannot query native device formats", "device", d.Name, "err", err)
			})
		} else {
			for _, f := range full.Formats[:full.FormatCount] {
				if f.Format != malgo.FormatS16 && f.Format != malgo.FormatUnknown {
					continue
				}
				d.Formats = append(d.Formats, audio.Format{
					SampleRate: int(f.SampleRate),
					Channels:   int(f.Channels),
				})
			}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Open initialises a capture device. Zero rate or channel count in cfg lets
// miniaudio pick the device default.
func (h *MalgoHost) Open(dev Device, cfg StreamConfig, onData func([]byte)) (Stream, error) {
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(cfg.Channels)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.Alsa.NoMMap = 1
	if id, ok := dev.handle.(*malgo.DeviceID); ok {
		dc.Capture.DeviceID = id.Pointer()
	}

	s := &malgoStream{stopped: make(chan struct{})}
	device, err := malgo.InitDevice(h.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
		Stop: s.markStopped,
	})
	if err != nil {
		return nil, err
	}
	s.device = device
	return s, nil
}

// Close releases the miniaudio context.
func (h *MalgoHost) Close() error {
	err := h.ctx.Uninit()
	h.ctx.Free()
	return err
}

type malgoStream struct {
	device   *malgo.Device
	stopped  chan struct{}
	stopOnce sync.Once
}

// markStopped runs on the miniaudio thread whenever the device stops,
// including the stop issued by Close.
func (s *malgoStream) markStopped() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *malgoStream) Stopped() <-chan struct{} { return s.stopped }

func (s *malgoStream) Format() audio.Format {
	return audio.Format{
		SampleRate: int(s.device.SampleRate()),
		Channels:   int(s.device.CaptureChannels()),
	}
}

func (s *malgoStream) Start() error { return s.device.Start() }

func (s *malgoStream) Close() error {
	err := s.device.Stop()
	s.device.Uninit()
	return err
}
