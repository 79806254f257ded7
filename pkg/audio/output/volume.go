// ABOUTME: Software volume control shared by all output backends
// ABOUTME: Converts normalized samples to int16 with volume and mute applied
package output

import (
	"sync"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/rs/zerolog/log"
)

// Volume holds the software volume (0-100) and mute state
type Volume struct {
	mu     sync.RWMutex
	volume int
	muted  bool
}

// NewVolume creates a volume control at the given level
func NewVolume(volume int) *Volume {
	return &Volume{volume: clampVolume(volume)}
}

// SetVolume sets the volume (0-100)
func (v *Volume) SetVolume(volume int) {
	v.mu.Lock()
	v.volume = clampVolume(volume)
	v.mu.Unlock()
	log.Debug().Int("volume", volume).Msg("Volume set")
}

// SetMuted sets mute state
func (v *Volume) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	log.Debug().Bool("muted", muted).Msg("Mute set")
}

// GetVolume returns current volume
func (v *Volume) GetVolume() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volume
}

// IsMuted returns mute state
func (v *Volume) IsMuted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.muted
}

// apply scales samples by the current volume and converts them to int16
func (v *Volume) apply(samples []float32) []int16 {
	v.mu.RLock()
	volume, muted := v.volume, v.muted
	v.mu.RUnlock()
	return applyVolume(samples, volume, muted)
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}

// applyVolume applies volume and mute to samples with clipping protection
func applyVolume(samples []float32, volume int, muted bool) []int16 {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]int16, len(samples))
	for i, sample := range samples {
		result[i] = audio.SampleToInt16(float32(float64(sample) * multiplier))
	}

	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
