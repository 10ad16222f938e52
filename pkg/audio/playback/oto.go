package playback

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// drainPoll is how often Play checks whether the device finished playing.
const drainPoll = 10 * time.Millisecond

// OtoPlayer plays through the system default output using oto. oto allows a
// single context per process, so create one OtoPlayer and share it.
type OtoPlayer struct {
	ctx *oto.Context

	// mu serialises playback; the assistant never speaks over itself.
	mu sync.Mutex
}

var _ Player = (*OtoPlayer)(nil)

// NewOtoPlayer opens the output device for mono 16-bit audio at
// [audio.SampleRate]. buffer is the device buffer length; zero lets oto
// choose.
func NewOtoPlayer(buffer time.Duration) (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("playback: init output: %w", err)
	}
	<-ready
	return &OtoPlayer{ctx: ctx}, nil
}

// Play implements [Player].
func (p *OtoPlayer) Play(ctx context.Context, pcm io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	player := p.ctx.NewPlayer(pcm)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}
