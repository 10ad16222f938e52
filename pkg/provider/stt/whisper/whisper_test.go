package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/stt/whisper"
)

// inferenceRequest captures what the fake server received.
type inferenceRequest struct {
	fields  map[string]string
	wavSize int
}

// newFakeServer answers POST /inference with responseText and records each
// request it served.
func newFakeServer(t *testing.T, status int, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(f)
			rec.wavSize = len(data)
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "model exploded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_SendsWAVAndHints(t *testing.T) {
	t.Parallel()

	srv, requests := newFakeServer(t, http.StatusOK, "  What time is it?\n")
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := make([]int16, 19200)
	tr, err := p.Transcribe(context.Background(), samples, stt.Options{Language: "en", InitialPrompt: "clipboard"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "What time is it?" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Duration != 1200*time.Millisecond {
		t.Errorf("Duration = %v", tr.Duration)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	got := reqs[0]
	want := map[string]string{"language": "en", "model": "base.en", "prompt": "clipboard", "response_format": "json"}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, got.fields[k], v)
		}
	}
	if got.wavSize != 44+2*len(samples) {
		t.Errorf("wav size = %d, want %d", got.wavSize, 44+2*len(samples))
	}
}

func TestTranscribe_DefaultLanguage(t *testing.T) {
	t.Parallel()

	srv, requests := newFakeServer(t, http.StatusOK, "hallo")
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("de"))
	if _, err := p.Transcribe(context.Background(), make([]int16, 160), stt.Options{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	r := requests()[0]
	if r.fields["language"] != "de" {
		t.Errorf("language = %q, want de", r.fields["language"])
	}
	if _, ok := r.fields["prompt"]; ok {
		t.Error("empty prompt should not be sent")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeServer(t, http.StatusInternalServerError, "")
	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), make([]int16, 160), stt.Options{})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want HTTP 500 error", err)
	}
}

func TestTranscribe_EmptyResult(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeServer(t, http.StatusOK, "   ")
	p, _ := whisper.New(srv.URL)
	tr, err := p.Transcribe(context.Background(), make([]int16, 160), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv, requests := newFakeServer(t, http.StatusOK, "x")
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, make([]int16, 160), stt.Options{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if n := len(requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestTranscribe_ConcurrentCalls(t *testing.T) {
	t.Parallel()

	srv, requests := newFakeServer(t, http.StatusOK, "ok")
	p, _ := whisper.New(srv.URL)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Transcribe(context.Background(), make([]int16, audio.FrameSamples(30)), stt.Options{}); err != nil {
				t.Errorf("Transcribe: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := len(requests()); n != 8 {
		t.Errorf("requests = %d, want 8", n)
	}
}
