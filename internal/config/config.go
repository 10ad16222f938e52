// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Jarvis voice assistant.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the matching [slog.Level]. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for Jarvis.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	WakeWord  WakeWordConfig  `yaml:"wakeword"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Assistant AssistantConfig `yaml:"assistant"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP surface (e.g., ":8089").
	// Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists host patterns allowed to open the event stream
	// from a browser on another origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AudioConfig selects devices and sizes the capture buffer.
type AudioConfig struct {
	Input  DeviceConfig `yaml:"input"`
	Output DeviceConfig `yaml:"output"`

	// BufferSeconds sizes the capture frame buffer. Default 5.
	BufferSeconds float64 `yaml:"buffer_seconds"`

	// PollInterval is how often a blocked read re-checks the buffer.
	// Default 10ms.
	PollInterval time.Duration `yaml:"poll_interval"`

	// WakeSound is an optional WAV file played on wake. Empty selects a
	// generated beep.
	WakeSound string `yaml:"wake_sound"`

	// RecordDir, when set, receives every utterance as a WAV file.
	RecordDir string `yaml:"record_dir"`
}

// DeviceConfig picks an audio device by name, then index.
type DeviceConfig struct {
	// DeviceName is a case-insensitive substring of the device name.
	DeviceName string `yaml:"device_name"`

	// DeviceIndex is used when DeviceName is empty or matches nothing.
	DeviceIndex int `yaml:"device_index"`
}

// WakeWordConfig tunes the wake-word gate.
type WakeWordConfig struct {
	// FrameLength is the frame size in samples the detector is expected to
	// take. Startup fails when the detector reports a different one; zero
	// skips the check.
	FrameLength int `yaml:"frame_length"`

	// Sensitivity in [0, 1]. Default 0.5.
	Sensitivity float64 `yaml:"sensitivity"`

	// CheckEvery is the number of frames between stop checks. Default 100.
	CheckEvery int `yaml:"check_every"`
}

// SegmenterConfig tunes utterance segmentation.
type SegmenterConfig struct {
	FrameDurationMs         int     `yaml:"frame_duration_ms"`
	SpeechTriggerFrames     int     `yaml:"speech_trigger_frames"`
	PreRollFrames           int     `yaml:"pre_roll_frames"`
	SilenceThresholdSeconds float64 `yaml:"silence_threshold_seconds"`
	CheckEvery              int     `yaml:"check_every"`
}

// AssistantConfig tunes the responder.
type AssistantConfig struct {
	// Language is the transcription language. Empty lets the STT provider
	// auto-detect.
	Language string `yaml:"language"`

	// SystemPrompt is sent with every LLM request.
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryTurns is the number of past messages sent as context.
	HistoryTurns int `yaml:"history_turns"`

	// HistoryExpiration drops context older than this. Zero keeps it.
	HistoryExpiration time.Duration `yaml:"history_expiration"`

	// InitialPrompt biases transcription towards expected vocabulary.
	InitialPrompt string `yaml:"initial_prompt"`

	// MinUtteranceSeconds pads short recordings before transcription.
	MinUtteranceSeconds float64 `yaml:"min_utterance_seconds"`

	// Temperature and MaxTokens are forwarded to the LLM.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// WeatherURL overrides the wttr.in endpoint.
	WeatherURL string `yaml:"weather_url"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	VAD      ProviderEntry `yaml:"vad"`
	WakeWord ProviderEntry `yaml:"wakeword"`

	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "whisper-native").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider, or a model file path for
	// local engines.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or def when unset.
func (e ProviderEntry) Option(key, def string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// FloatOption returns the numeric option key, or def when unset.
func (e ProviderEntry) FloatOption(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
