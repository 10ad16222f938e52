package config

import "reflect"

// ConfigDiff describes what changed between two configs. Fields that can
// be applied to a running session are tracked individually; everything
// else is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SegmenterChanged covers segmenter parameters, the VAD mode and the
	// wake-word check period, all re-read at the next recording attempt.
	SegmenterChanged bool

	// AssistantChanged covers the responder configuration, including the
	// TTS voice.
	AssistantChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SegmenterChanged || d.AssistantChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Segmenter != new.Segmenter ||
		old.WakeWord.CheckEvery != new.WakeWord.CheckEvery ||
		old.Providers.VAD.Option("mode", "") != new.Providers.VAD.Option("mode", "") {
		d.SegmenterChanged = true
	}

	if old.Assistant != new.Assistant ||
		old.Audio.RecordDir != new.Audio.RecordDir ||
		old.Providers.TTS.Option("voice_id", "") != new.Providers.TTS.Option("voice_id", "") {
		d.AssistantChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	oa, na := old.Audio, new.Audio
	oa.RecordDir, na.RecordDir = "", ""
	if oa != na {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	ow, nw := old.WakeWord, new.WakeWord
	ow.CheckEvery, nw.CheckEvery = 0, 0
	if ow != nw {
		d.RestartRequired = append(d.RestartRequired, "wakeword")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}

	return d
}

// providersEqual compares provider blocks, ignoring the VAD mode and TTS
// voice which are applied live.
func providersEqual(a, b ProvidersConfig) bool {
	strip := func(p ProvidersConfig) ProvidersConfig {
		p.VAD = withoutOption(p.VAD, "mode")
		p.TTS = withoutOption(p.TTS, "voice_id")
		return p
	}
	return reflect.DeepEqual(strip(a), strip(b))
}

func withoutOption(e ProviderEntry, key string) ProviderEntry {
	if _, ok := e.Options[key]; !ok {
		if len(e.Options) == 0 {
			e.Options = nil
		}
		return e
	}
	opts := make(map[string]any, len(e.Options))
	for k, v := range e.Options {
		if k != key {
			opts[k] = v
		}
	}
	if len(opts) == 0 {
		opts = nil
	}
	e.Options = opts
	return e
}
