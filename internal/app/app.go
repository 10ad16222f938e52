// Package app wires the Jarvis subsystems into a running assistant.
//
// The App owns the full lifecycle: New creates and connects the frame
// buffer, capture stream, responder, turn controller, event hub and HTTP
// surface; Run drives them until the context is done; Shutdown releases the
// providers in reverse order.
//
// For testing, inject mock providers through [Providers] and test doubles
// through functional options.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/assistant"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/events"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/internal/turn"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// captureStaleAfter is how long the microphone may stay silent (no buffers
// at all, not quiet audio) before /readyz reports it.
const captureStaleAfter = 3 * time.Second

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Named pairs a provider with its configured name.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds one value per provider slot. Host, VAD, WakeWord and STT
// are required; a nil LLM, TTS or Player degrades the assistant. Populated
// by main.go via the config registry.
type Providers struct {
	Host     capture.Host
	Player   playback.Player
	VAD      vad.Engine
	WakeWord wakeword.Detector
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider

	STTFallbacks []Named[stt.Provider]
	LLMFallbacks []Named[llm.Provider]

	// Closers release backend resources such as native models or the audio
	// context. Shutdown calls them in reverse order.
	Closers []func() error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers
	metrics   *observe.Metrics
	scrape    http.Handler
	level     *slog.LevelVar
	weather   assistant.WeatherSource
	autoStart bool

	buf        *audio.FrameBuffer
	capture    *capture.Capture
	responder  *assistant.Responder
	controller *turn.Controller
	hub        *events.Hub
	sessions   *sessionManager
	handler    http.Handler

	sttFallback *resilience.STTFallback
	llmFallback *resilience.LLMFallback

	mu         sync.Mutex
	captureErr error

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets config reloads change the log level of the handler
// built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWeather overrides the weather source of the weather command.
func WithWeather(w assistant.WeatherSource) Option {
	return func(a *App) { a.weather = w }
}

// WithAutoStart controls whether Run starts a session right away. The
// default is true; otherwise a session starts with POST /session/start.
func WithAutoStart(on bool) Option {
	return func(a *App) { a.autoStart = on }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It performs all
// initialisation synchronously; audio only flows once Run is called.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(providers); err != nil {
		return nil, err
	}
	if want, got := cfg.WakeWord.FrameLength, providers.WakeWord.FrameLength(); want > 0 && want != got {
		return nil, fmt.Errorf("app: wakeword.frame_length is %d but the detector expects %d samples", want, got)
	}
	a := &App{providers: providers, autoStart: true}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}
	if a.weather == nil {
		a.weather = assistant.NewWTTR(cfg.Assistant.WeatherURL, nil)
	}
	a.closers = append(a.closers, providers.Closers...)
	a.closers = append(a.closers, providers.WakeWord.Close)

	// ── 1. Frame buffer + capture ────────────────────────────────────────
	if err := a.initCapture(cfg); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 2. Responder ─────────────────────────────────────────────────────
	if err := a.initResponder(cfg); err != nil {
		return nil, fmt.Errorf("app: init responder: %w", err)
	}

	// ── 3. Event hub + controller ────────────────────────────────────────
	a.hub = events.New(
		events.WithMetrics(a.metrics),
		events.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	)
	if err := a.initController(cfg); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.sessions = &sessionManager{ctrl: a.controller}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.routes()
	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errors.New("app: providers are required")
	}
	var errs []error
	if p.Host == nil {
		errs = append(errs, errors.New("audio host"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad"))
	}
	if p.WakeWord == nil {
		errs = append(errs, errors.New("wake word detector"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: missing required providers: %w", err)
	}
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCapture(cfg *config.Config) error {
	capacity := int(cfg.Audio.BufferSeconds * audio.SampleRate)
	if capacity <= 0 {
		capacity = config.DefaultBufferSeconds * audio.SampleRate
	}
	a.buf = audio.NewFrameBuffer(capacity, audio.WithPollInterval(cfg.Audio.PollInterval))

	reg, err := a.metrics.RegisterBufferOverflow(a.buf.Overflow)
	if err != nil {
		return fmt.Errorf("register overflow gauge: %w", err)
	}
	a.closers = append(a.closers, reg.Unregister)

	a.capture = capture.New(a.providers.Host, a.buf, capture.Selection{
		Name:  cfg.Audio.Input.DeviceName,
		Index: cfg.Audio.Input.DeviceIndex,
	})
	return nil
}

// initResponder wraps STT and LLM in fallback groups when fallbacks are
// configured and builds the assistant.
func (a *App) initResponder(cfg *config.Config) error {
	p := a.providers

	sttProvider := p.STT
	if len(p.STTFallbacks) > 0 {
		a.sttFallback = resilience.NewSTTFallback(p.STT, cfg.Providers.STT.Name, resilience.FallbackConfig{Kind: "stt", Metrics: a.metrics})
		for _, fb := range p.STTFallbacks {
			a.sttFallback.AddFallback(fb.Name, fb.Provider)
		}
		sttProvider = a.sttFallback
	}

	opts := []assistant.Option{
		assistant.WithMetrics(a.metrics),
		assistant.WithWeather(a.weather),
	}
	if p.LLM != nil {
		var lp llm.Provider = p.LLM
		if len(p.LLMFallbacks) > 0 {
			a.llmFallback = resilience.NewLLMFallback(p.LLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{Kind: "llm", Metrics: a.metrics})
			for _, fb := range p.LLMFallbacks {
				a.llmFallback.AddFallback(fb.Name, fb.Provider)
			}
			lp = a.llmFallback
		}
		opts = append(opts, assistant.WithLLM(lp))
	}
	switch {
	case p.TTS != nil && p.Player != nil:
		opts = append(opts, assistant.WithTTS(p.TTS, p.Player))
	case p.TTS != nil:
		slog.Warn("tts provider configured without an audio output; answers will be text only")
	}

	r, err := assistant.New(sttProvider, assistantConfig(cfg), opts...)
	if err != nil {
		return err
	}
	a.responder = r
	return nil
}

func (a *App) initController(cfg *config.Config) error {
	settings, err := turnSettings(cfg)
	if err != nil {
		return err
	}

	opts := []turn.Option{
		turn.WithObserver(a.hub),
		turn.WithMetrics(a.metrics),
		// Audio captured while no session was listening is stale.
		turn.WithLoader(func(context.Context) error { return a.buf.Reset() }),
	}
	if a.providers.Player != nil {
		pcm, err := playback.WakeSound(cfg.Audio.WakeSound)
		if err != nil {
			slog.Warn("cannot load wake sound, using the default beep", "path", cfg.Audio.WakeSound, "err", err)
			pcm, _ = playback.WakeSound("")
		}
		opts = append(opts, turn.WithWakeSound(a.providers.Player, pcm))
	}

	c, err := turn.New(a.buf, a.providers.WakeWord, a.providers.VAD, a.responder, settings, opts...)
	if err != nil {
		return err
	}
	a.controller = c
	return nil
}

// turnSettings maps the hot-reloadable config sections to controller
// settings.
func turnSettings(cfg *config.Config) (turn.Settings, error) {
	mode, err := vad.ParseMode(cfg.Providers.VAD.Option("mode", ""))
	if err != nil {
		return turn.Settings{}, err
	}
	s := cfg.Segmenter
	return turn.Settings{
		Segmenter: turn.SegmenterConfig{
			FrameDurationMs:         s.FrameDurationMs,
			SpeechTriggerFrames:     s.SpeechTriggerFrames,
			PreRollFrames:           s.PreRollFrames,
			SilenceThresholdSeconds: s.SilenceThresholdSeconds,
			CheckEvery:              s.CheckEvery,
		},
		VADMode:        mode,
		GateCheckEvery: cfg.WakeWord.CheckEvery,
	}, nil
}

func assistantConfig(cfg *config.Config) assistant.Config {
	as := cfg.Assistant
	return assistant.Config{
		Language:          as.Language,
		InitialPrompt:     as.InitialPrompt,
		SystemPrompt:      as.SystemPrompt,
		HistoryTurns:      as.HistoryTurns,
		HistoryExpiration: as.HistoryExpiration,
		MinUtterance:      time.Duration(as.MinUtteranceSeconds * float64(time.Second)),
		RecordDir:         cfg.Audio.RecordDir,
		Voice:             tts.Voice{ID: cfg.Providers.TTS.Option("voice_id", "")},
		Temperature:       as.Temperature,
		MaxTokens:         as.MaxTokens,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture stream, the HTTP server (when a listen address is
// configured) and, unless disabled, the first session. It blocks until ctx
// is cancelled or the HTTP server fails.
//
// A capture failure is logged, reported to observers and kept for /status
// and /readyz; the process keeps running so the failure stays visible.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.sessions.bind(gctx)

	g.Go(func() error {
		err := a.capture.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.mu.Lock()
			a.captureErr = err
			a.mu.Unlock()
			a.controller.Say(turn.Message{Role: turn.RoleSystem, Content: fmt.Sprintf("Microphone stopped: %v", err)})
		}
		return nil
	})

	if addr := a.cfg.Load().Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.autoStart {
		if _, err := a.sessions.start(); err != nil {
			slog.Warn("cannot start session", "err", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		a.sessions.unbind()
		return nil
	})

	slog.Info("app running", "device_query", a.cfg.Load().Audio.Input.DeviceName)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// StartSession starts listening for the wake word. It fails with
// [ErrSessionActive] while a session runs and with [ErrNotRunning] outside
// of Run.
func (a *App) StartSession() (SessionInfo, error) { return a.sessions.start() }

// StopSession asks the active session to stop. The session returns to Idle
// at its next cancellation check.
func (a *App) StopSession() error { return a.sessions.stop() }

// Handler returns the HTTP surface: probes, metrics, the event stream,
// status and session control.
func (a *App) Handler() http.Handler { return a.handler }

// CaptureErr returns the error that stopped the capture stream, if any.
func (a *App) CaptureErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.captureErr
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded config. Its signature matches
// [config.ChangeFunc] so it can be handed to [config.NewWatcher].
func (a *App) ApplyConfig(_, updated *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
	}
	if d.SegmenterChanged {
		settings, err := turnSettings(updated)
		if err == nil {
			err = a.controller.UpdateSettings(settings)
		}
		if err != nil {
			slog.Warn("config reload: segmenter settings not applied", "err", err)
		}
	}
	if d.AssistantChanged {
		if err := a.responder.UpdateConfig(assistantConfig(updated)); err != nil {
			slog.Warn("config reload: assistant settings not applied", "err", err)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: changes take effect after a restart", "sections", d.RestartRequired)
	}
	a.cfg.Store(updated)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the active session and releases all providers in reverse
// order. If ctx expires before all closers finish, the remaining ones are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.sessions.unbind()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── HTTP ────────────────────────────────────────────────────────────────────

// Status is the JSON body of GET /status.
type Status struct {
	events.Snapshot

	Session        *SessionInfo                 `json:"session,omitempty"`
	Device         string                       `json:"device,omitempty"`
	Samples        uint64                       `json:"samples"`
	BufferOverflow uint64                       `json:"buffer_overflow"`
	LastError      string                       `json:"last_error,omitempty"`
	CaptureError   string                       `json:"capture_error,omitempty"`
	Breakers       map[string]map[string]string `json:"breakers,omitempty"`
}

// Status reports the current state of the assistant.
func (a *App) Status() Status {
	st := Status{
		Snapshot:       a.hub.Snapshot(),
		Device:         a.capture.Device(),
		Samples:        a.capture.Samples(),
		BufferOverflow: a.buf.Overflow(),
	}
	if info, ok := a.sessions.current(); ok {
		st.Session = &info
	}
	if err := a.controller.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if err := a.CaptureErr(); err != nil {
		st.CaptureError = err.Error()
	}
	breakers := map[string]map[string]string{}
	if a.sttFallback != nil {
		breakers["stt"] = stateNames(a.sttFallback.States())
	}
	if a.llmFallback != nil {
		breakers["llm"] = stateNames(a.llmFallback.States())
	}
	if len(breakers) > 0 {
		st.Breakers = breakers
	}
	return st
}

func stateNames(states map[string]resilience.State) map[string]string {
	out := make(map[string]string, len(states))
	for name, s := range states {
		out[name] = s.String()
	}
	return out
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	health.New(
		health.Recent("capture", a.capture.LastDelivery, captureStaleAfter, a.controller.Running),
		health.LastError("capture_stream", a.CaptureErr),
		health.LastError("session", a.controller.LastError),
	).Register(mux)

	mux.Handle("GET /metrics", a.scrape)
	mux.Handle("GET /events", a.hub)
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.Status())
	})
	mux.HandleFunc("POST /session/start", a.handleStart)
	mux.HandleFunc("POST /session/stop", a.handleStop)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleStart(w http.ResponseWriter, _ *http.Request) {
	info, err := a.StartSession()
	switch {
	case errors.Is(err, ErrSessionActive):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "session": info})
	case errors.Is(err, ErrNotRunning):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"session": info})
	}
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.StopSession(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}
