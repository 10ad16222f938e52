package turn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/turn"
)

func TestToken_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	tok := turn.NewToken()
	if !tok.Running() {
		t.Fatal("new token not running")
	}
	tok.Stop()
	tok.Stop()
	if tok.Running() {
		t.Error("token still running after Stop")
	}
	select {
	case <-tok.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestToken_ContextCancelledOnStop(t *testing.T) {
	t.Parallel()

	tok := turn.NewToken()
	ctx, cancel := tok.Context(context.Background())
	defer cancel()

	tok.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Stop")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v", ctx.Err())
	}
}

func TestToken_ContextFollowsParent(t *testing.T) {
	t.Parallel()

	tok := turn.NewToken()
	parent, stop := context.WithCancel(context.Background())
	ctx, cancel := tok.Context(parent)
	defer cancel()

	stop()
	<-ctx.Done()
	if !tok.Running() {
		t.Error("parent cancellation must not stop the token")
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	for _, p := range []turn.Phase{turn.Idle, turn.Loading, turn.WakeListening, turn.Recording, turn.Processing, turn.Speaking} {
		got, err := turn.ParsePhase(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePhase(%q) = %v, %v", p.String(), got, err)
		}
	}
	if got := turn.Phase(42).String(); got != "Phase(42)" {
		t.Errorf("unknown phase = %q", got)
	}
	if _, err := turn.ParsePhase("dreaming"); err == nil {
		t.Error("expected error for unknown label")
	}
}
