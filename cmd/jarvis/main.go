// Command jarvis is the main entry point for the Jarvis voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/llm/anyllm"
	"github.com/MrWong99/jarvis/pkg/provider/llm/openai"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/stt/whisper"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/vad/energy"
	"github.com/MrWong99/jarvis/pkg/provider/vad/webrtc"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword/porcupine"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// playbackBuffer is the oto output buffer. Shorter buffers cut latency but
// underrun on busy machines.
const playbackBuffer = 100 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print capture and playback devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
			return 1
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jarvis: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("jarvis starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.NewTelemetry(ctx, observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	tel.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithLevelVar(level),
		app.WithMetrics(tel.Metrics()),
		app.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		release(providers)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("listening for the wake word, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// reloadOnHangup re-reads the config on SIGHUP without waiting for the next
// poll.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			applied, err := w.Check()
			switch {
			case err != nil:
				slog.Warn("SIGHUP reload failed", "err", err)
			case !applied:
				slog.Info("SIGHUP reload: config unchanged")
			}
		}
	}
}

// porcupineConfig maps a wake-word provider entry to a detector config. The
// built-in "jarvis" keyword is used only when no custom keyword model is
// given.
func porcupineConfig(entry config.ProviderEntry, sensitivity float64) wakeword.Config {
	paths := splitList(entry.Option("keyword_path", ""))
	def := "jarvis"
	if len(paths) > 0 {
		def = ""
	}
	return wakeword.Config{
		AccessKey:    entry.APIKey,
		Keywords:     splitList(entry.Option("keyword", def)),
		KeywordPaths: paths,
		Sensitivity:  sensitivity,
		ModelPath:    entry.Model,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// The wake-word factory reads its sensitivity from cfg.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Wake word ─────────────────────────────────────────────────────────────
	reg.RegisterWakeWord("porcupine", func(entry config.ProviderEntry) (wakeword.Detector, error) {
		return porcupine.New(porcupineConfig(entry, cfg.WakeWord.Sensitivity))
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.Option("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.FloatOption("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm backend shares the same pattern: optional APIKey plus
	// optional BaseURL. openai is served by the official SDK below.
	for _, name := range anyllm.Backends {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if _, ok := entry.Options["stability"]; ok {
			opts = append(opts, elevenlabs.WithVoiceSettings(
				entry.FloatOption("stability", 0.5),
				entry.FloatOption("similarity_boost", 0.75),
			))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"vad", "wakeword", "stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg and opens the
// audio devices. On error every resource created so far is released.
func buildProviders(cfg *config.Config, reg *config.Registry) (ps *app.Providers, err error) {
	ps = &app.Providers{}
	defer func() {
		if err != nil {
			release(ps)
		}
	}()

	// closer registers p's Close method, if it has one.
	closer := func(p any) {
		if c, ok := p.(io.Closer); ok {
			ps.Closers = append(ps.Closers, c.Close)
		}
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	host, err := capture.NewMalgoHost()
	if err != nil {
		return ps, fmt.Errorf("open audio host: %w", err)
	}
	ps.Host = host
	ps.Closers = append(ps.Closers, host.Close)

	if cfg.Audio.Output.DeviceName != "" {
		slog.Warn("output device selection is not supported, using the system default", "device", cfg.Audio.Output.DeviceName)
	}
	if player, perr := playback.NewOtoPlayer(playbackBuffer); perr != nil {
		slog.Warn("audio output unavailable, answers will be text only", "err", perr)
	} else {
		ps.Player = player
	}

	// ── Pipeline providers ────────────────────────────────────────────────────
	if ps.VAD, err = create(reg.CreateVAD, "vad", cfg.Providers.VAD); err != nil {
		return ps, err
	}
	if ps.WakeWord, err = create(reg.CreateWakeWord, "wakeword", cfg.Providers.WakeWord); err != nil {
		return ps, err
	}
	if ps.STT, err = create(reg.CreateSTT, "stt", cfg.Providers.STT); err != nil {
		return ps, err
	}
	closer(ps.STT)
	if ps.LLM, err = create(reg.CreateLLM, "llm", cfg.Providers.LLM); err != nil {
		return ps, err
	}
	if ps.TTS, err = create(reg.CreateTTS, "tts", cfg.Providers.TTS); err != nil {
		return ps, err
	}

	// ── Fallbacks ─────────────────────────────────────────────────────────────
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := create(reg.CreateSTT, "stt", entry)
		if err != nil {
			return ps, err
		}
		closer(p)
		ps.STTFallbacks = append(ps.STTFallbacks, app.Named[stt.Provider]{Name: entry.Name, Provider: p})
	}
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := create(reg.CreateLLM, "llm", entry)
		if err != nil {
			return ps, err
		}
		ps.LLMFallbacks = append(ps.LLMFallbacks, app.Named[llm.Provider]{Name: entry.Name, Provider: p})
	}
	return ps, nil
}

// create builds the provider for entry. An empty entry name yields the zero
// value, which the application treats as "not configured".
func create[T any](factory func(config.ProviderEntry) (T, error), kind string, entry config.ProviderEntry) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := factory(entry)
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// release closes everything buildProviders opened. It is only needed when
// the application never took ownership of ps.
func release(ps *app.Providers) {
	if ps.WakeWord != nil {
		if err := ps.WakeWord.Close(); err != nil {
			slog.Warn("close error", "kind", "wakeword", "err", err)
		}
	}
	for i := len(ps.Closers) - 1; i >= 0; i-- {
		if err := ps.Closers[i](); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// ── Device listing ────────────────────────────────────────────────────────────

func printDevices(w io.Writer) error {
	host, err := capture.NewMalgoHost()
	if err != nil {
		return err
	}
	defer host.Close()

	inputs, err := host.Devices()
	if err != nil {
		return err
	}
	outputs, err := host.OutputDevices()
	if err != nil {
		return err
	}
	writeDevices(w, "Input devices", inputs)
	writeDevices(w, "Output devices", outputs)
	return nil
}

func writeDevices(w io.Writer, title string, devices []capture.Device) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", d.Index, d.Name, def)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Jarvis, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Wake word", cfg.Providers.WakeWord.Name, cfg.Providers.WakeWord.Option("keyword", "jarvis"))
	printProvider("VAD", cfg.Providers.VAD.Name, cfg.Providers.VAD.Option("mode", ""))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Fallbacks       : %-19s ║\n", fmt.Sprintf("%d stt / %d llm", len(cfg.Providers.STTFallbacks), len(cfg.Providers.LLMFallbacks)))
	input := cfg.Audio.Input.DeviceName
	if input == "" {
		input = fmt.Sprintf("#%d", cfg.Audio.Input.DeviceIndex)
	}
	printLine("Input device", input)
	if cfg.Server.ListenAddr != "" {
		printLine("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	printLine(kind, value)
}

func printLine(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// splitList splits a comma-separated option into trimmed, non-empty parts.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
