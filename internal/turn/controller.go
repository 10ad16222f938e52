package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/playback"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

// ErrAlreadyRunning is returned by [Controller.Run] while another Run is
// active on the same controller.
var ErrAlreadyRunning = errors.New("turn: controller already running")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a line of the conversation shown to observers.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Observer receives phase changes and messages. Most calls come from the
// controller goroutine, but [Controller.Say] may also be called from others
// (the application reports capture failures that way). The controller
// delivers one notification at a time, in order; implementations must not
// block and must not call back into the controller.
type Observer interface {
	OnPhase(p Phase)
	OnMessage(m Message)
}

// MetaObserver is an optional extension of [Observer] for metadata attached
// to an earlier message, such as the measured turn latency.
type MetaObserver interface {
	OnMeta(messageID string, meta map[string]any)
}

// Utterance is a recorded command handed to the [Responder].
type Utterance struct {
	Samples []int16
	Keyword int
	WokeAt  time.Time
}

// Duration returns the length of the recorded audio.
func (u Utterance) Duration() time.Duration { return audio.DurationOf(len(u.Samples)) }

// Speaker is the controller surface a [Responder] talks back through.
type Speaker interface {
	// Say publishes m to observers and returns it with ID and CreatedAt
	// filled in.
	Say(m Message) Message

	// Annotate attaches metadata to an earlier message.
	Annotate(messageID string, meta map[string]any)

	// Speaking switches the phase to [Speaking]. Call it right before
	// playback starts.
	Speaking()
}

// Responder turns an utterance into an answer. Returning an error reports it
// to observers as a system message; the loop then keeps listening.
type Responder interface {
	Respond(ctx context.Context, u Utterance, sp Speaker) error
}

// ResponderFunc adapts a function to [Responder].
type ResponderFunc func(ctx context.Context, u Utterance, sp Speaker) error

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, u Utterance, sp Speaker) error {
	return f(ctx, u, sp)
}

// Settings are the parameters re-read at the start of every recording
// attempt, so a config reload takes effect without a restart.
type Settings struct {
	Segmenter SegmenterConfig
	VADMode   vad.Mode

	// GateCheckEvery is the token polling period of the wake-word gate.
	GateCheckEvery int
}

// Option configures a [Controller].
type Option func(*Controller)

// WithObserver adds an observer. Observers are notified in the order they
// were added.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithWakeSound plays pcm through p after every wake-word match.
func WithWakeSound(p playback.Player, pcm []int16) Option {
	return func(c *Controller) {
		c.player = p
		c.wakeSound = pcm
	}
}

// WithMetrics records loop metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLoader runs fn while the controller is in the [Loading] phase, before
// the first wake-word frame is read. An error ends the session.
func WithLoader(fn func(ctx context.Context) error) Option {
	return func(c *Controller) { c.loader = fn }
}

// Controller sequences the wake-word gate, the segmenter and the responder,
// and owns the session phase.
type Controller struct {
	src       Source
	det       wakeword.Detector
	vad       vad.Engine
	responder Responder

	observers []Observer
	notifyMu  sync.Mutex
	player    playback.Player
	wakeSound []int16
	metrics   *observe.Metrics
	log       *slog.Logger
	loader    func(ctx context.Context) error

	settings atomic.Pointer[Settings]
	phase    phaseCell
	running  atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// New returns an idle controller. src is usually the capture
// [audio.FrameBuffer].
func New(src Source, det wakeword.Detector, engine vad.Engine, r Responder, s Settings, opts ...Option) (*Controller, error) {
	if err := s.Segmenter.Validate(); err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	c := &Controller{
		src:       src,
		det:       det,
		vad:       engine,
		responder: r,
		log:       slog.Default(),
	}
	c.settings.Store(&s)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Phase returns the current phase. Safe to call from any goroutine.
func (c *Controller) Phase() Phase { return c.phase.load() }

// Running reports whether Run is active.
func (c *Controller) Running() bool { return c.running.Load() }

// LastError returns the error that ended the previous session, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Settings returns the parameters used by the next recording attempt.
func (c *Controller) Settings() Settings { return *c.settings.Load() }

// UpdateSettings replaces the parameters for subsequent attempts. An
// attempt that is already recording keeps its parameters.
func (c *Controller) UpdateSettings(s Settings) error {
	if err := s.Segmenter.Validate(); err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	c.settings.Store(&s)
	return nil
}

// Run drives the session until tok is stopped or ctx is done, then returns
// to [Idle] and nil. A fatal error (classifier failure, poisoned buffer,
// loader failure) is reported to observers as a system message, the phase
// returns to Idle and the error is returned. A failed session must be
// started again with a fresh token.
func (c *Controller) Run(ctx context.Context, tok *Token) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	err := c.run(ctx, tok)
	if err != nil && !errors.Is(err, ErrCancelled) && ctx.Err() == nil {
		c.log.Error("turn: session failed", "err", err)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.Say(Message{Role: RoleSystem, Content: fmt.Sprintf("Session stopped: %v. Start it again to continue.", err)})
		c.setPhase(ctx, Idle)
		return err
	}
	c.setPhase(ctx, Idle)
	c.log.Info("turn: session stopped")
	return nil
}

func (c *Controller) run(parent context.Context, tok *Token) error {
	ctx, cancel := tok.Context(parent)
	defer cancel()

	c.setPhase(ctx, Loading)
	if c.loader != nil {
		if err := c.loader(ctx); err != nil {
			if !tok.Running() {
				return ErrCancelled
			}
			return fmt.Errorf("turn: load: %w", err)
		}
	}

	for tok.Running() && ctx.Err() == nil {
		s := c.Settings()

		c.setPhase(ctx, WakeListening)
		kw, err := NewGate(c.src, c.det, s.GateCheckEvery).Wait(ctx, tok)
		if err != nil {
			return err
		}
		wokeAt := time.Now()
		c.log.Info("turn: wake word detected", "keyword", kw)
		if c.metrics != nil {
			c.metrics.WakeDetections.Add(ctx, 1)
		}
		c.playWakeSound(ctx)

		c.setPhase(ctx, Recording)
		samples, err := c.record(ctx, tok, s)
		switch {
		case errors.Is(err, ErrCancelled):
			c.recordOutcome(ctx, "cancelled", 0)
			continue
		case err != nil:
			return err
		case len(samples) == 0:
			c.recordOutcome(ctx, "empty", 0)
			c.log.Info("turn: no speech after wake word")
			continue
		}

		u := Utterance{Samples: samples, Keyword: kw, WokeAt: wokeAt}
		c.recordOutcome(ctx, "complete", u.Duration().Seconds())
		c.log.Debug("turn: utterance recorded", "duration", u.Duration())

		c.setPhase(ctx, Processing)
		if err := c.responder.Respond(ctx, u, c); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				continue
			}
			c.log.Warn("turn: respond failed", "err", err)
			c.Say(Message{Role: RoleSystem, Content: err.Error()})
		}
	}
	return nil
}

// record runs one segmentation attempt with a fresh VAD session.
func (c *Controller) record(ctx context.Context, tok *Token, s Settings) ([]int16, error) {
	sess, err := c.vad.NewSession(vad.Config{
		SampleRate:  audio.SampleRate,
		FrameSizeMs: s.Segmenter.FrameDurationMs,
		Mode:        s.VADMode,
	})
	if err != nil {
		return nil, &ClassifierError{Source: "vad", Err: err}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.log.Warn("turn: close vad session", "err", err)
		}
	}()

	seg, err := NewSegmenter(s.Segmenter, sess)
	if err != nil {
		return nil, err
	}
	return seg.Record(ctx, c.src, tok)
}

func (c *Controller) playWakeSound(ctx context.Context) {
	if c.player == nil || len(c.wakeSound) == 0 {
		return
	}
	if err := playback.PlaySamples(ctx, c.player, c.wakeSound); err != nil {
		c.log.Warn("turn: play wake sound", "err", err)
	}
}

func (c *Controller) recordOutcome(ctx context.Context, outcome string, seconds float64) {
	if c.metrics != nil {
		c.metrics.RecordUtterance(ctx, outcome, seconds)
	}
}

func (c *Controller) setPhase(ctx context.Context, p Phase) {
	if c.phase.swap(p) == p {
		return
	}
	c.log.Debug("turn: phase", "phase", p)
	if c.metrics != nil {
		c.metrics.RecordPhase(context.WithoutCancel(ctx), p.String())
	}
	c.notify(func(o Observer) { o.OnPhase(p) })
}

// notify delivers fn to every observer, serialised across goroutines.
func (c *Controller) notify(fn func(Observer)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for _, o := range c.observers {
		fn(o)
	}
}

// Say implements [Speaker]. It is safe to call from any goroutine.
func (c *Controller) Say(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	c.notify(func(o Observer) { o.OnMessage(m) })
	return m
}

// Annotate implements [Speaker].
func (c *Controller) Annotate(messageID string, meta map[string]any) {
	c.notify(func(o Observer) {
		if mo, ok := o.(MetaObserver); ok {
			mo.OnMeta(messageID, meta)
		}
	})
}

// Speaking implements [Speaker].
func (c *Controller) Speaking() { c.setPhase(context.Background(), Speaking) }
