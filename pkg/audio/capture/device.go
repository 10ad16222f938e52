// Package capture owns the hardware input stream. It selects a device,
// negotiates a stream format, and feeds every delivered buffer through a
// stride downmix and an [audio.Resampler] into an [audio.FrameBuffer].
//
// The hardware layer sits behind [Host] so the pipeline can run against
// miniaudio ([MalgoHost]) in production and a scripted host in tests.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// ErrNoDevices is returned when enumeration succeeds but reports no input
// devices at all. It is the only selection outcome that fails.
var ErrNoDevices = errors.New("capture: no input devices available")

// ErrUnsupportedFormat is returned when an opened stream reports a format the
// pipeline cannot consume.
var ErrUnsupportedFormat = errors.New("capture: unsupported stream format")

// ErrStreamStopped is reported when the backend stops a running stream, as
// it does when the device disappears.
var ErrStreamStopped = errors.New("capture: stream stopped by the device")

// DeviceError describes a failure to enumerate, open, configure, or start a
// capture device. It is terminal for the capture session, not the process.
type DeviceError struct {
	// Op is the failing step: "enumerate", "select", "open", "configure" or
	// "start".
	Op string

	// Device is the device name, empty when no device was chosen yet.
	Device string

	Err error
}

// Error implements error.
func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("capture: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("capture: %s %q: %v", e.Op, e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error { return e.Err }

// Device describes one enumerated input device.
type Device struct {
	// Index is the position in the enumeration order.
	Index int

	// Name is the human-readable device name reported by the backend.
	Name string

	// IsDefault is true for the system default input.
	IsDefault bool

	// Formats lists native formats the device advertises. It may be empty
	// when the backend cannot report them.
	Formats []audio.Format

	// handle is backend-specific and opaque to callers.
	handle any
}

// Selection chooses an input device. A non-empty Name wins over Index.
type Selection struct {
	// Name is matched case-insensitively as a substring of device names.
	Name string

	// Index selects by enumeration position when Name is empty or unmatched.
	Index int
}

// SelectDevice picks a device from devices according to sel.
//
// The first device whose name contains sel.Name (case-insensitive) is chosen.
// Without a match, sel.Index is used, falling back to index 0 when it is out of
// range. Fallbacks are logged, not failed. Only an empty device list is an
// error.
func SelectDevice(devices []Device, sel Selection) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevices
	}

	if query := strings.TrimSpace(sel.Name); query != "" {
		q := strings.ToLower(query)
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), q) {
				return d, nil
			}
		}
		slog.Warn("capture: no device name matches, falling back to index",
			"query", query,
			"index", sel.Index,
		)
	}

	if sel.Index >= 0 && sel.Index < len(devices) {
		return devices[sel.Index], nil
	}

	slog.Warn("capture: device index out of range, using device 0",
		"index", sel.Index,
		"available", len(devices),
		"device", devices[0].Name,
	)
	return devices[0], nil
}

// StreamConfig is the format requested when opening a device. Zero fields ask
// the backend for the device default. Samples are always signed 16-bit.
type StreamConfig struct {
	SampleRate int
	Channels   int
}

// Negotiate returns the stream configuration to request for dev: exact
// analysis format when the device advertises it, otherwise the device
// default.
func Negotiate(dev Device) StreamConfig {
	for _, f := range dev.Formats {
		if f == audio.Analysis {
			return StreamConfig{SampleRate: audio.SampleRate, Channels: 1}
		}
	}
	return StreamConfig{}
}
