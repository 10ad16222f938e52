package assistant

import (
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

func user(s string) llm.Message { return llm.Message{Role: llm.RoleUser, Content: s} }

func contents(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestHistory_KeepsMostRecent(t *testing.T) {
	t.Parallel()

	h := NewHistory(3, 0)
	h.Add(user("a"), user("b"))
	h.Add(user("c"), user("d"))

	got := contents(h.Recent())
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("Recent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Recent = %v, want %v", got, want)
		}
	}
}

func TestHistory_ExpiresOldMessages(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory(10, 10*time.Minute)
	h.now = func() time.Time { return now }

	h.Add(user("old"))
	now = now.Add(6 * time.Minute)
	h.Add(user("newer"))
	now = now.Add(5 * time.Minute)

	got := contents(h.Recent())
	if len(got) != 1 || got[0] != "newer" {
		t.Errorf("Recent = %v, want [newer]", got)
	}

	now = now.Add(time.Hour)
	if h.Len() != 0 {
		t.Errorf("Len = %d after everything expired", h.Len())
	}
}

func TestHistory_ResetAndResize(t *testing.T) {
	t.Parallel()

	h := NewHistory(4, 0)
	h.Add(user("a"), user("b"), user("c"), user("d"))

	h.Resize(2, 0)
	if got := contents(h.Recent()); len(got) != 2 || got[0] != "c" {
		t.Errorf("after Resize: %v, want [c d]", got)
	}

	h.Reset()
	if h.Len() != 0 {
		t.Errorf("Len = %d after Reset", h.Len())
	}
	h.Add(user("e"))
	if h.Len() != 1 {
		t.Errorf("Len = %d after Add following Reset", h.Len())
	}
}
