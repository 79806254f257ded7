// ABOUTME: Audio type definitions
// ABOUTME: Defines the fixed stream format and decoded sample buffers
package audio

import "time"

const (
	// SampleRate is the only rate the player accepts (Hz)
	SampleRate = 24000

	// Channels is the only channel count the player accepts
	Channels = 1

	// BitDepth of the PCM samples on the wire
	BitDepth = 16

	// pcm16Scale maps int16 onto [-1.0, 1.0)
	pcm16Scale = 32768.0
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// StreamFormat is the fixed format shared by producer and player
var StreamFormat = Format{
	Codec:      "pcm",
	SampleRate: SampleRate,
	Channels:   Channels,
	BitDepth:   BitDepth,
}

// Equal reports whether two formats describe the same stream
func (f Format) Equal(other Format) bool {
	return f.Codec == other.Codec &&
		f.SampleRate == other.SampleRate &&
		f.Channels == other.Channels &&
		f.BitDepth == other.BitDepth
}

// Buffer represents decoded PCM audio
type Buffer struct {
	Seq     uint64    // Arrival order, assigned by the engine
	Samples []float32 // Normalized samples in [-1.0, 1.0]
	Format  Format
}

// Frames returns the number of sample frames in the buffer
func (b Buffer) Frames() int {
	channels := b.Format.Channels
	if channels <= 0 {
		channels = 1
	}
	return len(b.Samples) / channels
}

// Duration returns how long the buffer takes to play
func (b Buffer) Duration() time.Duration {
	rate := b.Format.SampleRate
	if rate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(rate)
}

// SampleFromInt16 converts an int16 sample to a normalized float
func SampleFromInt16(sample int16) float32 {
	return float32(float64(sample) / pcm16Scale)
}

// SampleToInt16 converts a normalized float back to int16, clipping out-of-range values
func SampleToInt16(sample float32) int16 {
	scaled := float64(sample) * pcm16Scale
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
