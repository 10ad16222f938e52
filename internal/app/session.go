package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/internal/turn"
)

// Session errors returned by [App.StartSession] and [App.StopSession].
var (
	ErrNotRunning    = errors.New("app: not running")
	ErrSessionActive = errors.New("app: a session is already active")
	ErrNoSession     = errors.New("app: no active session")
)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// sessionManager runs at most one controller session at a time. A session
// ends when it is stopped, when the run context is done, or when the
// controller fails; a failed session stays down until started again.
// All methods are safe for concurrent use.
type sessionManager struct {
	ctrl *turn.Controller

	mu     sync.Mutex
	ctx    context.Context
	active bool
	info   SessionInfo
	token  *turn.Token

	wg sync.WaitGroup
}

// bind makes ctx the parent of every session started afterwards.
func (sm *sessionManager) bind(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ctx = ctx
}

// unbind refuses new sessions, stops the active one and waits for it.
func (sm *sessionManager) unbind() {
	sm.mu.Lock()
	sm.ctx = nil
	if sm.token != nil {
		sm.token.Stop()
	}
	sm.mu.Unlock()
	sm.wg.Wait()
}

func (sm *sessionManager) start() (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctx == nil {
		return SessionInfo{}, ErrNotRunning
	}
	if sm.active {
		return sm.info, ErrSessionActive
	}

	tok := turn.NewToken()
	info := SessionInfo{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	sm.active, sm.info, sm.token = true, info, tok

	sm.wg.Add(1)
	go sm.run(sm.ctx, tok, info)
	return info, nil
}

func (sm *sessionManager) run(ctx context.Context, tok *turn.Token, info SessionInfo) {
	defer sm.wg.Done()
	log := slog.With("session_id", info.ID)
	log.Info("session started")

	err := sm.ctrl.Run(ctx, tok)

	sm.mu.Lock()
	if sm.token == tok {
		sm.active = false
		sm.token = nil
	}
	sm.mu.Unlock()

	if err != nil {
		log.Error("session failed", "err", err, "duration", time.Since(info.StartedAt))
		return
	}
	log.Info("session ended", "duration", time.Since(info.StartedAt))
}

func (sm *sessionManager) stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return ErrNoSession
	}
	sm.token.Stop()
	return nil
}

// current returns the active session, if any.
func (sm *sessionManager) current() (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info, sm.active
}
