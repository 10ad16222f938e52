package assistant_test

import (
	"testing"

	"github.com/MrWong99/jarvis/internal/assistant"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := assistant.NewMatcher(0)
	tests := []struct {
		text string
		want assistant.Command
	}{
		{"Forget.", assistant.Forget},
		{"please FORGET everything", assistant.Forget},
		{"for get everything", assistant.Forget},
		{"Erase memory", assistant.Forget},
		{"could you erase memories please", assistant.Forget},
		{"What's the weather?", assistant.Weather},
		{"weather", assistant.Weather},
		{"how's the wether", assistant.Weather},
		{"Tell me whether it will work", assistant.NoCommand},
		{"whether or not I should go", assistant.NoCommand},
		{"Whether.", assistant.NoCommand},
		{"Tell me a joke", assistant.NoCommand},
		{"erase the whiteboard", assistant.NoCommand},
		{"I forgot my keys", assistant.NoCommand},
		{"", assistant.NoCommand},
		{"...", assistant.NoCommand},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			got, score := m.Match(tc.text)
			if got != tc.want {
				t.Errorf("Match(%q) = %v (%.3f), want %v", tc.text, got, score, tc.want)
			}
		})
	}
}

func TestMatcher_ForgetWinsOverWeather(t *testing.T) {
	t.Parallel()

	got, _ := assistant.NewMatcher(0).Match("forget the weather")
	if got != assistant.Forget {
		t.Errorf("got %v, want forget", got)
	}
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	for cmd, want := range map[assistant.Command]string{
		assistant.NoCommand: "none",
		assistant.Forget:    "forget",
		assistant.Weather:   "weather",
	} {
		if got := cmd.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cmd, got, want)
		}
	}
}
