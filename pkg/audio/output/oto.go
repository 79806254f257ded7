// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays each buffer on its own oto player and reports when it finishes
package output

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/encode"
	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// oto allows only one context per process, so it is shared across devices
var (
	otoMu     sync.Mutex
	otoShared *oto.Context
	otoFormat audio.Format
)

// Oto output implementation using oto library
type Oto struct {
	ctx          context.Context
	cancel       context.CancelFunc
	otoCtx       *oto.Context
	format       audio.Format
	pollInterval time.Duration
	volume       *Volume

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewOto creates a new Oto output
func NewOto(pollInterval time.Duration, volume *Volume) *Oto {
	ctx, cancel := context.WithCancel(context.Background())

	if volume == nil {
		volume = NewVolume(100)
	}

	return &Oto{
		ctx:          ctx,
		cancel:       cancel,
		pollInterval: pollInterval,
		volume:       volume,
	}
}

// Open initializes the output device
func (o *Oto) Open(format audio.Format) error {
	otoMu.Lock()
	defer otoMu.Unlock()

	// Reuse the process-wide context if the format matches
	if otoShared != nil {
		if !otoFormat.Equal(format) {
			return fmt.Errorf("oto context already open as %dHz %dch, cannot reopen as %dHz %dch",
				otoFormat.SampleRate, otoFormat.Channels, format.SampleRate, format.Channels)
		}
		if err := otoShared.Resume(); err != nil {
			return fmt.Errorf("failed to resume oto context: %w", err)
		}
		o.otoCtx = otoShared
		o.format = format
		log.Debug().Msg("Reusing existing oto context")
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	otoShared = ctx
	otoFormat = format
	o.otoCtx = ctx
	o.format = format

	log.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Audio output initialized (oto)")

	return nil
}

// Schedule starts a player for buf and watches it until playback ends
func (o *Oto) Schedule(buf audio.Buffer, done func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.otoCtx == nil {
		return fmt.Errorf("output not initialized")
	}

	data := encode.PCM16(o.volume.apply(buf.Samples))

	player := o.otoCtx.NewPlayer(bytes.NewReader(data))
	player.Play()

	o.wg.Add(1)
	go o.watch(player, buf.Seq, done)

	return nil
}

// watch polls the player until it stops, then reports completion
func (o *Oto) watch(player *oto.Player, seq uint64, done func()) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			_ = player.Close()
			return
		case <-ticker.C:
			if player.IsPlaying() {
				continue
			}
			if err := player.Err(); err != nil {
				log.Warn().Err(err).Uint64("seq", seq).Msg("oto player error")
			}
			if err := player.Close(); err != nil {
				log.Warn().Err(err).Uint64("seq", seq).Msg("Failed to close oto player")
			}
			done()
			return
		}
	}
}

// Close stops all watchers and suspends the shared context
func (o *Oto) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	if o.otoCtx != nil {
		otoMu.Lock()
		defer otoMu.Unlock()
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}

	log.Debug().Msg("oto output closed")
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.volume.SetVolume(volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.volume.SetMuted(muted)
}
