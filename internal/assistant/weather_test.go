package assistant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/jarvis/internal/assistant"
)

const wttrBody = `{
  "current_condition": [
    {"temp_C": "14", "weatherDesc": [{"value": "Partly cloudy"}]}
  ],
  "nearest_area": []
}`

func TestWTTR_Current(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "j1" {
			t.Errorf("format = %q, want j1", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wttrBody))
	}))
	defer srv.Close()

	w := assistant.NewWTTR(srv.URL+"/?format=j1", srv.Client())
	got, err := w.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got.Description != "Partly cloudy" || got.TemperatureC != "14" {
		t.Errorf("report = %+v", got)
	}
	if want := "The current weather is Partly cloudy with a temperature of 14°C."; got.Sentence() != want {
		t.Errorf("Sentence = %q, want %q", got.Sentence(), want)
	}
}

func TestWTTR_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusServiceUnavailable, ""},
		{"bad json", http.StatusOK, "{"},
		{"no condition", http.StatusOK, `{"current_condition": []}`},
		{"no description", http.StatusOK, `{"current_condition": [{"temp_C": "3", "weatherDesc": []}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			if _, err := assistant.NewWTTR(srv.URL, srv.Client()).Current(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
