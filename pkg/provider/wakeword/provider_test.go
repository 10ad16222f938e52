package wakeword_test

import (
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/wakeword"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     wakeword.Config
		wantErr bool
	}{
		{"builtin keyword", wakeword.Config{Keywords: []string{"jarvis"}, Sensitivity: 0.5}, false},
		{"keyword file", wakeword.Config{KeywordPaths: []string{"jarvis.ppn"}}, false},
		{"no keywords", wakeword.Config{Sensitivity: 0.5}, true},
		{"sensitivity above one", wakeword.Config{Keywords: []string{"jarvis"}, Sensitivity: 1.2}, true},
		{"negative sensitivity", wakeword.Config{Keywords: []string{"jarvis"}, Sensitivity: -0.1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
