package mock_test

import (
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/mock"
)

func TestHost_StartedAcrossStreams(t *testing.T) {
	t.Parallel()

	h := mock.NewHost(audio.Analysis, "USB Mic")
	select {
	case <-h.Started():
		t.Fatal("Started closed before any stream ran")
	default:
	}

	var got []int
	for i := range 2 {
		s, err := h.Open(h.DeviceList[0], capture.StreamConfig{}, func(pcm []byte) { got = append(got, len(pcm)) })
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
		if err := s.Start(); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		<-h.Started()
		h.FeedSamples(make([]int16, 4))
		if err := s.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}

	if h.Closed != 2 || len(h.Opened) != 2 {
		t.Errorf("opened %d, closed %d, want 2 each", len(h.Opened), h.Closed)
	}
	if len(got) != 2 || got[0] != 8 {
		t.Errorf("callbacks = %v, want two of 8 bytes", got)
	}
	h.FeedSamples(make([]int16, 4))
	if len(got) != 2 {
		t.Error("Feed after Close reached the callback")
	}
}

func TestHost_Unplug(t *testing.T) {
	t.Parallel()

	h := mock.NewHost(audio.Analysis, "USB Mic")
	h.Unplug()

	s, err := h.Open(h.DeviceList[0], capture.StreamConfig{}, func([]byte) {})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h.Unplug()
	h.Unplug()
	select {
	case <-s.Stopped():
	case <-time.After(time.Second):
		t.Fatal("Stopped not closed after Unplug")
	}
}
