// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit little-endian mono PCM to normalized float samples
package decode

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/rs/zerolog/log"
)

// PCM16 converts little-endian signed 16-bit samples to floats in [-1.0, 1.0].
// A trailing odd byte is ignored.
func PCM16(data []byte) []float32 {
	numSamples := len(data) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return samples
}

// Base64 unwraps a base64 transport chunk into raw PCM bytes
func Base64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 chunk: %w", err)
	}
	return data, nil
}

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	format    audio.Format
	truncated atomic.Int64
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != audio.BitDepth {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	if format.Channels != audio.Channels {
		return nil, fmt.Errorf("unsupported channel count: %d (supported: 1)", format.Channels)
	}

	return &PCMDecoder{
		format: format,
	}, nil
}

// Decode converts PCM bytes to a sample buffer. Odd-length input loses its
// trailing byte and is logged, but still decodes.
func (d *PCMDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data)%2 != 0 {
		n := d.truncated.Add(1)
		log.Warn().
			Int("bytes", len(data)).
			Int64("truncated_total", n).
			Msg("Malformed PCM chunk: dropping trailing byte")
	}

	return audio.Buffer{
		Samples: PCM16(data),
		Format:  d.format,
	}, nil
}

// Truncated returns how many odd-length chunks have been decoded
func (d *PCMDecoder) Truncated() int64 {
	return d.truncated.Load()
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
