// Package assistant turns a recorded utterance into a spoken answer.
//
// A [Responder] transcribes the utterance, intercepts local commands (forget
// the conversation, weather), asks the LLM with the recent conversation as
// context, and speaks the answer through TTS and the audio player. Every
// step reports its result to the turn controller through [turn.Speaker] so
// observers see the conversation as it happens.
//
// Only the STT provider is mandatory. Without an LLM or TTS provider the
// responder reports what is missing and the controller keeps listening.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/turn"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// Fixed replies.
const (
	NotUnderstood      = "(couldn't understand)"
	AskRepeat          = "Sorry, I didn't catch that. Please repeat."
	ForgetReply        = "Okay, I erased my memory of our conversation."
	WeatherUnavailable = "Sorry, I couldn't get the weather right now."
)

// Meta keys attached to assistant messages.
const (
	MetaTokensEstimate = "tts_tokens_est"
	MetaLatencyMs      = "latency_ms"
)

// Config holds the tunables of a [Responder]. It can be replaced at runtime
// with [Responder.UpdateConfig].
type Config struct {
	// Language is passed to the STT provider. Empty means auto-detect.
	Language string

	// InitialPrompt biases transcription towards expected vocabulary.
	InitialPrompt string

	// SystemPrompt is sent with every LLM completion.
	SystemPrompt string

	// HistoryTurns is the number of past messages sent as context.
	HistoryTurns int

	// HistoryExpiration drops context older than this. Zero keeps it
	// forever.
	HistoryExpiration time.Duration

	// MinUtterance pads short recordings with silence before transcription.
	MinUtterance time.Duration

	// RecordDir, when set, receives every utterance as a WAV file.
	RecordDir string

	// Voice is the TTS voice. An empty Voice.ID disables speech.
	Voice tts.Voice

	// Temperature and MaxTokens are forwarded to the LLM. Zero means the
	// provider default.
	Temperature float64
	MaxTokens   int
}

// Defaults used by [Config.withDefaults].
const (
	DefaultHistoryTurns = 12
	DefaultMinUtterance = 1200 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = DefaultHistoryTurns
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	return c
}

// Option configures a [Responder].
type Option func(*Responder)

// WithLLM sets the language model. Without one the responder only handles
// local commands.
func WithLLM(p llm.Provider) Option {
	return func(r *Responder) { r.llm = p }
}

// WithTTS sets the speech synthesiser and the player its audio goes to.
func WithTTS(p tts.Provider, player playback.Player) Option {
	return func(r *Responder) {
		r.tts = p
		r.player = player
	}
}

// WithWeather overrides the weather source used by the weather command.
func WithWeather(w WeatherSource) Option {
	return func(r *Responder) { r.weather = w }
}

// WithMatcher overrides the command matcher.
func WithMatcher(m *Matcher) Option {
	return func(r *Responder) { r.matcher = m }
}

// WithMetrics records stage latencies to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// Responder implements [turn.Responder].
type Responder struct {
	stt     stt.Provider
	llm     llm.Provider
	tts     tts.Provider
	player  playback.Player
	weather WeatherSource
	matcher *Matcher
	metrics *observe.Metrics

	cfg     atomic.Pointer[Config]
	history *History
}

var _ turn.Responder = (*Responder)(nil)

// New returns a responder that transcribes with s.
func New(s stt.Provider, cfg Config, opts ...Option) (*Responder, error) {
	if s == nil {
		return nil, errors.New("assistant: stt provider is required")
	}
	cfg = cfg.withDefaults()
	r := &Responder{
		stt:     s,
		weather: NewWTTR("", nil),
		matcher: NewMatcher(0),
		history: NewHistory(cfg.HistoryTurns, cfg.HistoryExpiration),
	}
	for _, o := range opts {
		o(r)
	}
	if r.tts != nil && r.player == nil {
		return nil, errors.New("assistant: tts provider needs a player")
	}
	if cfg.RecordDir != "" {
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			return nil, fmt.Errorf("assistant: create record dir: %w", err)
		}
	}
	r.cfg.Store(&cfg)
	return r, nil
}

// Config returns the active configuration.
func (r *Responder) Config() Config { return *r.cfg.Load() }

// UpdateConfig replaces the configuration for subsequent turns and applies
// new history limits immediately.
func (r *Responder) UpdateConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.RecordDir != "" {
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			return fmt.Errorf("assistant: create record dir: %w", err)
		}
	}
	r.history.Resize(cfg.HistoryTurns, cfg.HistoryExpiration)
	r.cfg.Store(&cfg)
	return nil
}

// History exposes the conversation context.
func (r *Responder) History() *History { return r.history }

// Respond implements [turn.Responder].
func (r *Responder) Respond(ctx context.Context, u turn.Utterance, sp turn.Speaker) (err error) {
	cfg := r.Config()
	ctx, stage := observe.StartStage(ctx, "assistant.respond", nil,
		attribute.Float64("utterance.seconds", u.Duration().Seconds()),
	)
	defer func() { stage.End(ctx, err) }()
	log := observe.Logger(ctx)

	samples := audio.Pad(u.Samples, audio.SamplesFor(cfg.MinUtterance))
	if cfg.RecordDir != "" {
		r.record(log, cfg.RecordDir, samples)
	}

	text, err := r.transcribe(ctx, samples, cfg)
	if err != nil {
		return err
	}
	if text == "" {
		sp.Say(turn.Message{Role: turn.RoleUser, Content: NotUnderstood})
		sp.Say(turn.Message{Role: turn.RoleAssistant, Content: AskRepeat})
		return nil
	}
	sp.Say(turn.Message{Role: turn.RoleUser, Content: text})

	if cmd, score := r.matcher.Match(text); cmd != NoCommand {
		log.Info("assistant: local command", "command", cmd.String(), "score", score)
		stage.Span().SetAttributes(attribute.String("command", cmd.String()))
		return r.runCommand(ctx, cmd, u, sp, cfg)
	}

	if r.llm == nil {
		sp.Say(turn.Message{Role: turn.RoleSystem, Content: "No language model is configured. Please enter an LLM API key."})
		return nil
	}

	answer, err := r.complete(ctx, text, cfg)
	if err != nil {
		return err
	}
	r.history.Add(
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	return r.answer(ctx, answer, u, sp, cfg)
}

// answer publishes text as an assistant message and speaks it.
func (r *Responder) answer(ctx context.Context, text string, u turn.Utterance, sp turn.Speaker, cfg Config) error {
	msg := sp.Say(turn.Message{
		Role:    turn.RoleAssistant,
		Content: text,
		Meta:    map[string]any{MetaTokensEstimate: EstimateTokens(text)},
	})
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if r.tts == nil || cfg.Voice.ID == "" {
		sp.Say(turn.Message{Role: turn.RoleSystem, Content: "No text-to-speech voice is configured. Please enter an ElevenLabs API key and voice."})
		return nil
	}

	sp.Speaking()
	if err := r.speak(ctx, text, cfg.Voice); err != nil {
		return err
	}
	if !u.WokeAt.IsZero() {
		latency := time.Since(u.WokeAt)
		sp.Annotate(msg.ID, map[string]any{MetaLatencyMs: latency.Milliseconds()})
		if r.metrics != nil {
			r.metrics.TurnDuration.Record(ctx, latency.Seconds())
		}
	}
	return nil
}

func (r *Responder) runCommand(ctx context.Context, cmd Command, u turn.Utterance, sp turn.Speaker, cfg Config) error {
	switch cmd {
	case Forget:
		r.history.Reset()
		return r.answer(ctx, ForgetReply, u, sp, cfg)
	case Weather:
		reply := WeatherUnavailable
		report, err := r.weather.Current(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observe.Logger(ctx).Warn("assistant: weather lookup failed", "err", err)
		} else {
			reply = report.Sentence()
		}
		return r.answer(ctx, reply, u, sp, cfg)
	default:
		return fmt.Errorf("assistant: unknown command %d", cmd)
	}
}

func (r *Responder) transcribe(ctx context.Context, samples []int16, cfg Config) (text string, err error) {
	ctx, stage := observe.StartStage(ctx, "assistant.stt", r.histogram(func(m *observe.Metrics) metric.Float64Histogram { return m.STTDuration }))
	defer func() { stage.End(ctx, err) }()

	tr, err := r.stt.Transcribe(ctx, samples, stt.Options{
		Language:      cfg.Language,
		InitialPrompt: cfg.InitialPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: transcribe: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (r *Responder) complete(ctx context.Context, text string, cfg Config) (answer string, err error) {
	ctx, stage := observe.StartStage(ctx, "assistant.llm", r.histogram(func(m *observe.Metrics) metric.Float64Histogram { return m.LLMDuration }))
	defer func() { stage.End(ctx, err) }()

	msgs := append(r.history.Recent(), llm.Message{Role: llm.RoleUser, Content: text})
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: complete: %w", err)
	}
	stage.Span().SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
		attribute.Bool("llm.truncated", resp.Truncated),
	)
	answer = strings.TrimSpace(resp.Content)
	if resp.Truncated {
		observe.Logger(ctx).Info("assistant: answer hit the token limit, dropping the unfinished sentence", "max_tokens", cfg.MaxTokens)
		answer = TrimToSentence(answer)
	}
	return answer, nil
}

func (r *Responder) speak(ctx context.Context, text string, voice tts.Voice) (err error) {
	ctx, stage := observe.StartStage(ctx, "assistant.tts", r.histogram(func(m *observe.Metrics) metric.Float64Histogram { return m.TTSDuration }),
		attribute.String("tts.voice", voice.ID),
	)
	defer func() { stage.End(ctx, err) }()

	// Cancelling releases the synthesiser if playback stops early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pcm, err := r.tts.SynthesizeStream(ctx, tts.Sentences(text), voice)
	if err != nil {
		return fmt.Errorf("assistant: synthesize: %w", err)
	}
	if err := r.player.Play(ctx, playback.NewChanReader(ctx, pcm)); err != nil {
		return fmt.Errorf("assistant: play answer: %w", err)
	}
	return nil
}

// histogram picks an instrument from the responder's metrics, if any.
func (r *Responder) histogram(pick func(*observe.Metrics) metric.Float64Histogram) metric.Float64Histogram {
	if r.metrics == nil {
		return nil
	}
	return pick(r.metrics)
}

// record writes samples to dir. Failures are logged and never end the turn.
func (r *Responder) record(log *slog.Logger, dir string, samples []int16) {
	path := filepath.Join(dir, "utterance-"+time.Now().Format("20060102-150405.000")+".wav")
	if err := audio.WriteWAVFile(path, samples); err != nil {
		log.Warn("assistant: write utterance", "path", path, "err", err)
		return
	}
	log.Debug("assistant: utterance recorded", "path", path)
}

// TrimToSentence cuts s after its last sentence-ending punctuation so a
// truncated answer is not spoken mid-sentence. Text without a sentence end
// is returned unchanged.
func TrimToSentence(s string) string {
	for i := len(s) - 1; i > 0; i-- {
		switch s[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if i == len(s)-1 || s[i+1] == ' ' || s[i+1] == '\n' {
			return s[:i+1]
		}
	}
	return s
}

// EstimateTokens approximates the token count of text at four characters
// per token, rounding up.
func EstimateTokens(text string) int {
	return (len([]rune(text)) + 3) / 4
}
