package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":      {"webrtc", "energy"},
	"wakeword": {"porcupine"},
	"stt":      {"whisper", "whisper-native"},
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"elevenlabs"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultBufferSeconds       = 5
	DefaultPollInterval        = 10 * time.Millisecond
	DefaultFrameLength         = 512
	DefaultSensitivity         = 0.5
	DefaultCheckEvery          = 100
	DefaultFrameDurationMs     = 30
	DefaultSpeechTriggerFrames = 8
	DefaultSilenceSeconds      = 1.0
	DefaultHistoryTurns        = 12
	DefaultMinUtterance        = 1.2
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A .env file next to the config, if present, is loaded into the
// process environment first so ${VAR} references can resolve from it.
// Variables already set in the environment win.
func Load(path string) (*Config, error) {
	env := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(env); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: cannot load .env file", "path", env, "err", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), lookupEnv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupEnv resolves ${VAR}. Unset variables expand to the empty string and
// "$$" stays a literal dollar sign.
func lookupEnv(name string) string {
	if name == "$" {
		return "$"
	}
	return os.Getenv(name)
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.BufferSeconds == 0 {
		a.BufferSeconds = DefaultBufferSeconds
	}
	if a.PollInterval == 0 {
		a.PollInterval = DefaultPollInterval
	}

	w := &cfg.WakeWord
	if w.FrameLength == 0 {
		w.FrameLength = DefaultFrameLength
	}
	if w.Sensitivity == 0 {
		w.Sensitivity = DefaultSensitivity
	}
	if w.CheckEvery == 0 {
		w.CheckEvery = DefaultCheckEvery
	}

	s := &cfg.Segmenter
	if s.FrameDurationMs == 0 {
		s.FrameDurationMs = DefaultFrameDurationMs
	}
	if s.SpeechTriggerFrames == 0 {
		s.SpeechTriggerFrames = DefaultSpeechTriggerFrames
	}
	if s.SilenceThresholdSeconds == 0 {
		s.SilenceThresholdSeconds = DefaultSilenceSeconds
	}
	if s.CheckEvery == 0 {
		s.CheckEvery = DefaultCheckEvery
	}

	as := &cfg.Assistant
	if as.HistoryTurns == 0 {
		as.HistoryTurns = DefaultHistoryTurns
	}
	if as.MinUtteranceSeconds == 0 {
		as.MinUtteranceSeconds = DefaultMinUtterance
	}

	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = "webrtc"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.BufferSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_seconds %g must be positive", cfg.Audio.BufferSeconds))
	}
	if cfg.Audio.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval %s must be positive", cfg.Audio.PollInterval))
	}
	if cfg.Audio.Input.DeviceIndex < 0 {
		errs = append(errs, fmt.Errorf("audio.input.device_index %d must not be negative", cfg.Audio.Input.DeviceIndex))
	}

	// Wake word
	if cfg.WakeWord.Sensitivity < 0 || cfg.WakeWord.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wakeword.sensitivity %g is out of range [0, 1]", cfg.WakeWord.Sensitivity))
	}
	if cfg.WakeWord.FrameLength < 0 {
		errs = append(errs, fmt.Errorf("wakeword.frame_length %d must be positive", cfg.WakeWord.FrameLength))
	}
	if cfg.WakeWord.CheckEvery < 0 {
		errs = append(errs, fmt.Errorf("wakeword.check_every %d must be positive", cfg.WakeWord.CheckEvery))
	}

	// Segmenter
	seg := cfg.Segmenter
	if !slices.Contains([]int{10, 20, 30}, seg.FrameDurationMs) {
		errs = append(errs, fmt.Errorf("segmenter.frame_duration_ms %d is invalid; valid values: 10, 20, 30", seg.FrameDurationMs))
	}
	if seg.SpeechTriggerFrames < 0 {
		errs = append(errs, fmt.Errorf("segmenter.speech_trigger_frames %d must be positive", seg.SpeechTriggerFrames))
	}
	switch {
	case seg.PreRollFrames < 0:
		errs = append(errs, fmt.Errorf("segmenter.pre_roll_frames %d must not be negative", seg.PreRollFrames))
	case seg.PreRollFrames > 0 && seg.PreRollFrames < seg.SpeechTriggerFrames:
		errs = append(errs, fmt.Errorf("segmenter.pre_roll_frames %d must be 0 or at least speech_trigger_frames (%d)", seg.PreRollFrames, seg.SpeechTriggerFrames))
	}
	if seg.SilenceThresholdSeconds < 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold_seconds %g must not be negative", seg.SilenceThresholdSeconds))
	}
	if seg.CheckEvery < 0 {
		errs = append(errs, fmt.Errorf("segmenter.check_every %d must be positive", seg.CheckEvery))
	}

	// Assistant
	as := cfg.Assistant
	if as.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_turns %d must not be negative", as.HistoryTurns))
	}
	if as.HistoryExpiration < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_expiration %s must not be negative", as.HistoryExpiration))
	}
	if as.MinUtteranceSeconds < 0 {
		errs = append(errs, fmt.Errorf("assistant.min_utterance_seconds %g must not be negative", as.MinUtteranceSeconds))
	}
	if as.Temperature < 0 || as.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %g is out of range [0, 2]", as.Temperature))
	}

	// Providers
	p := cfg.Providers
	if p.WakeWord.Name == "" {
		errs = append(errs, errors.New("providers.wakeword.name is required"))
	}
	if p.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if p.LLM.Name == "" && len(p.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	for i, e := range p.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
	}
	for i, e := range p.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}

	validateProviderName("vad", p.VAD.Name)
	validateProviderName("wakeword", p.WakeWord.Name)
	validateProviderName("stt", p.STT.Name)
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("tts", p.TTS.Name)

	// Provider availability warnings. Both only degrade the assistant.
	if p.LLM.Name == "" {
		slog.Warn("no LLM provider configured; only local commands will be answered")
	}
	if p.TTS.Name == "" {
		slog.Warn("no TTS provider configured; answers will be shown as text only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
