package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jarvis/pkg/provider/tts"
)

// fakeElevenLabs echoes every text fragment back as "audio" and records what
// it received.
type fakeElevenLabs struct {
	mu       sync.Mutex
	query    string
	boi      textMessage
	received []string
}

func (f *fakeElevenLabs) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/text-to-speech/{voice}/stream-input", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.query = r.URL.RawQuery
		f.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		first := true
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg textMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("bad message %q: %v", data, err)
				return
			}
			if first {
				first = false
				f.mu.Lock()
				f.boi = msg
				f.mu.Unlock()
				continue
			}
			if msg.Text == "" {
				final, _ := json.Marshal(audioResponse{IsFinal: true})
				_ = conn.Write(ctx, websocket.MessageText, final)
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			f.mu.Lock()
			f.received = append(f.received, msg.Text)
			f.mu.Unlock()
			out, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte(msg.Text))})
			_ = conn.Write(ctx, websocket.MessageText, out)
		}
	})
	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"v1","name":"Rachel","category":"premade","labels":{"accent":"american"}},
			{"voice_id":"v2","name":"Adam"}
		]}`))
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeElevenLabs, opts ...Option) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")
	p, err := New("key", append([]Option{WithBaseURLs(wsBase, srv.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSynthesizeStream_RoundTrip(t *testing.T) {
	f := &fakeElevenLabs{}
	p := newTestProvider(t, f, WithModel("eleven_turbo_v2_5"), WithVoiceSettings(0.3, 0.9))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	audio, err := p.SynthesizeStream(ctx, tts.Sentences("It is noon. Anything else?"), tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	var got strings.Builder
	for chunk := range audio {
		got.Write(chunk)
	}
	if got.String() != "It is noon. Anything else? " {
		t.Errorf("audio = %q", got.String())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boi.Text != " " || f.boi.XiAPIKey != "key" || f.boi.VoiceSettings == nil || f.boi.VoiceSettings.Stability != 0.3 {
		t.Errorf("BOI = %+v", f.boi)
	}
	if len(f.received) != 2 {
		t.Errorf("received %q", f.received)
	}
	if !strings.Contains(f.query, "output_format=pcm_16000") || !strings.Contains(f.query, "model_id=eleven_turbo_v2_5") {
		t.Errorf("query = %q", f.query)
	}
}

func TestSynthesizeStream_EmptyVoice(t *testing.T) {
	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), tts.Sentences("x"), tts.Voice{}); err == nil {
		t.Fatal("expected error for empty voice id")
	}
}

func TestSynthesizeStream_DialFailure(t *testing.T) {
	p, _ := New("key", WithBaseURLs("ws://127.0.0.1:1", "http://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.SynthesizeStream(ctx, tts.Sentences("x"), tts.Voice{ID: "v"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestListVoices(t *testing.T) {
	p := newTestProvider(t, &fakeElevenLabs{})
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices", len(voices))
	}
	if voices[0].ID != "v1" || voices[0].Labels["accent"] != "american" || voices[0].Labels["category"] != "premade" {
		t.Errorf("voice[0] = %+v", voices[0])
	}
	if len(voices[1].Labels) != 0 {
		t.Errorf("voice[1] labels = %v", voices[1].Labels)
	}
}

func TestStreamURL_EscapesVoice(t *testing.T) {
	p, _ := New("key")
	u := p.streamURL("a/b")
	if !strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/a%2Fb/stream-input?") {
		t.Errorf("url = %q", u)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
