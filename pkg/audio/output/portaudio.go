//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform callback stream draining scheduled segments
package output

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// PortAudio output implementation
type PortAudio struct {
	stream   *portaudio.Stream
	volume   *Volume
	segments segmentQueue
	mu       sync.Mutex
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(volume *Volume) *PortAudio {
	if volume == nil {
		volume = NewVolume(100)
	}
	return &PortAudio{volume: volume}
}

// Open initializes PortAudio
func (p *PortAudio) Open(format audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), 0, func(out []int16) {
		dispatch(p.segments.fill(out))
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	p.stream = stream

	log.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Audio output initialized (portaudio)")

	return nil
}

// Schedule queues buf for the stream callback
func (p *PortAudio) Schedule(buf audio.Buffer, done func()) error {
	p.mu.Lock()
	opened := p.stream != nil
	p.mu.Unlock()

	if !opened {
		return ErrClosed
	}
	return p.segments.push(p.volume.apply(buf.Samples), done)
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segments.close()

	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return err
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	p.stream = nil
	return portaudio.Terminate()
}
