// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with a callback that drains scheduled segments
package output

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	volume   *Volume
	ready    bool

	segments segmentQueue
	scratch  []int16
	mu       sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo(volume *Volume) *Malgo {
	if volume == nil {
		volume = NewVolume(100)
	}

	return &Malgo{
		volume: volume,
	}
}

// Open initializes the output device with specified format
func (m *Malgo) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if m.format.Equal(format) {
			return nil
		}
		return fmt.Errorf("malgo device already open as %dHz %dch", m.format.SampleRate, m.format.Channels)
	}

	if format.BitDepth != audio.BitDepth {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		m.dataCallback(pOutputSample, frameCount)
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		m.freeContext()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.format = format
	m.ready = true

	log.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Audio output initialized (malgo/S16)")

	return nil
}

// Schedule queues buf for the device callback
func (m *Malgo) Schedule(buf audio.Buffer, done func()) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()

	if !ready {
		return ErrClosed
	}

	return m.segments.push(m.volume.apply(buf.Samples), done)
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	total := int(frameCount) * m.format.Channels
	if cap(m.scratch) < total {
		m.scratch = make([]int16, total)
	}
	samples := m.scratch[:total]

	finished := m.segments.fill(samples)

	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(sample))
	}

	dispatch(finished)
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.segments.close()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Warn().Err(err).Msg("malgo device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}
	m.ready = false

	m.freeContext()
	return nil
}

// freeContext tears down the malgo context (must hold m.mu)
func (m *Malgo) freeContext() {
	if m.malgoCtx == nil {
		return
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		log.Warn().Err(err).Msg("malgo context uninit error")
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
}
