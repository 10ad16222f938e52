package tts_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "   ", nil},
		{"single without terminator", "hello there", []string{"hello there "}},
		{"two sentences", "It is noon. Anything else?", []string{"It is noon. ", "Anything else? "}},
		{"decimal point kept", "Pi is 3.14 roughly!", []string{"Pi is 3.14 roughly! "}},
		{"newline splits", "line one\nline two", []string{"line one ", "line two "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tts.SplitSentences(tc.in); !slices.Equal(got, tc.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSentences_ClosedChannel(t *testing.T) {
	t.Parallel()

	var got []string
	for s := range tts.Sentences("One. Two.") {
		got = append(got, s)
	}
	if len(got) != 2 {
		t.Fatalf("got %q", got)
	}
}
