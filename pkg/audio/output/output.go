// ABOUTME: Audio output interface definition
// ABOUTME: Common device contract and backend selection for playback
package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
)

var (
	// ErrClosed is returned when scheduling on a closed device
	ErrClosed = errors.New("output closed")

	// ErrUnknownBackend is returned by NewOpener for unsupported backend names
	ErrUnknownBackend = errors.New("unknown output backend")
)

// Device represents an open audio output device
type Device interface {
	// Schedule starts playing buf. done is called at most once, from another
	// goroutine, when the buffer has been played out. It is never called
	// from inside Schedule. Buffers still pending at Close never complete.
	Schedule(buf audio.Buffer, done func()) error

	// Close releases output resources
	Close() error
}

// Opener creates a device context for the given format
type Opener func(format audio.Format) (Device, error)

// Config selects and tunes an output backend
type Config struct {
	// Backend is "oto" (default), "malgo" or "portaudio"
	Backend string

	// PollInterval is how often the oto backend checks for finished buffers
	PollInterval time.Duration

	// Volume is shared with the host so it can be adjusted during playback
	Volume *Volume
}

// NewOpener returns an Opener for the configured backend
func NewOpener(config Config) (Opener, error) {
	if config.Volume == nil {
		config.Volume = NewVolume(100)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Millisecond
	}

	switch config.Backend {
	case "", "oto":
		return func(format audio.Format) (Device, error) {
			o := NewOto(config.PollInterval, config.Volume)
			if err := o.Open(format); err != nil {
				return nil, err
			}
			return o, nil
		}, nil
	case "malgo":
		return func(format audio.Format) (Device, error) {
			m := NewMalgo(config.Volume)
			if err := m.Open(format); err != nil {
				return nil, err
			}
			return m, nil
		}, nil
	case "portaudio":
		return func(format audio.Format) (Device, error) {
			p := NewPortAudio(config.Volume)
			if err := p.Open(format); err != nil {
				return nil, err
			}
			return p, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Backend)
	}
}
