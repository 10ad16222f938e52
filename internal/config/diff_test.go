package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8089", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			VAD:      config.ProviderEntry{Name: "webrtc", Options: map[string]any{"mode": "quality"}},
			WakeWord: config.ProviderEntry{Name: "porcupine", APIKey: "k"},
			STT:      config.ProviderEntry{Name: "whisper"},
			TTS:      config.ProviderEntry{Name: "elevenlabs", Options: map[string]any{"voice_id": "a"}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		wantLog     bool
		wantSeg     bool
		wantAsst    bool
		wantRestart []string
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
		},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:    "segmenter",
			mutate:  func(c *config.Config) { c.Segmenter.SilenceThresholdSeconds = 2 },
			wantSeg: true,
		},
		{
			name:    "wake check period",
			mutate:  func(c *config.Config) { c.WakeWord.CheckEvery = 10 },
			wantSeg: true,
		},
		{
			name:    "vad mode",
			mutate:  func(c *config.Config) { c.Providers.VAD.Options = map[string]any{"mode": "aggressive"} },
			wantSeg: true,
		},
		{
			name:    "vad mode removed",
			mutate:  func(c *config.Config) { c.Providers.VAD.Options = nil },
			wantSeg: true,
		},
		{
			name:     "assistant",
			mutate:   func(c *config.Config) { c.Assistant.HistoryExpiration = time.Minute },
			wantAsst: true,
		},
		{
			name:     "voice",
			mutate:   func(c *config.Config) { c.Providers.TTS.Options["voice_id"] = "b" },
			wantAsst: true,
		},
		{
			name:     "record dir",
			mutate:   func(c *config.Config) { c.Audio.RecordDir = "/tmp/rec" },
			wantAsst: true,
		},
		{
			name:        "input device",
			mutate:      func(c *config.Config) { c.Audio.Input.DeviceName = "USB" },
			wantRestart: []string{"audio"},
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":9000" },
			wantRestart: []string{"server"},
		},
		{
			name:        "sensitivity",
			mutate:      func(c *config.Config) { c.WakeWord.Sensitivity = 0.9 },
			wantRestart: []string{"wakeword"},
		},
		{
			name:        "provider key",
			mutate:      func(c *config.Config) { c.Providers.WakeWord.APIKey = "other" },
			wantRestart: []string{"providers"},
		},
		{
			name: "llm fallback added",
			mutate: func(c *config.Config) {
				c.Providers.LLMFallbacks = append(c.Providers.LLMFallbacks, config.ProviderEntry{Name: "openai"})
			},
			wantRestart: []string{"providers"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tc.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if d.SegmenterChanged != tc.wantSeg {
				t.Errorf("SegmenterChanged = %v, want %v", d.SegmenterChanged, tc.wantSeg)
			}
			if d.AssistantChanged != tc.wantAsst {
				t.Errorf("AssistantChanged = %v, want %v", d.AssistantChanged, tc.wantAsst)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			wantChanged := tc.wantLog || tc.wantSeg || tc.wantAsst || len(tc.wantRestart) > 0
			if d.Changed() != wantChanged {
				t.Errorf("Changed = %v, want %v", d.Changed(), wantChanged)
			}
		})
	}
}
