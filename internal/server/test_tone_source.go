// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates a mono sine wave at the stream sample rate
package server

import (
	"fmt"
	"math"
	"sync"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
)

// TestToneSource generates a continuous sine tone
type TestToneSource struct {
	sampleIndex uint64
	sampleMu    sync.Mutex
	frequency   float64
}

// NewTestToneSource creates a new test tone generator
func NewTestToneSource(frequency float64) *TestToneSource {
	if frequency <= 0 {
		frequency = 440.0 // A4
	}
	return &TestToneSource{frequency: frequency}
}

func (s *TestToneSource) Read(samples []int16) (int, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(audio.SampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5) // 50% volume
	}
	s.sampleIndex += uint64(len(samples))

	return len(samples), nil
}

func (s *TestToneSource) Name() string { return fmt.Sprintf("tone:%.0fHz", s.frequency) }
func (s *TestToneSource) Close() error { return nil }
