// ABOUTME: PCM audio encoder
// ABOUTME: Encodes samples to 16-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
)

// PCM16 packs int16 samples as little-endian bytes
func PCM16(samples []int16) []byte {
	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(sample))
	}
	return output
}

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	format audio.Format
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.BitDepth != audio.BitDepth {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	return &PCMEncoder{format: format}, nil
}

// Encode converts normalized samples to PCM16 bytes, clipping out-of-range values
func (e *PCMEncoder) Encode(buf audio.Buffer) ([]byte, error) {
	output := make([]byte, len(buf.Samples)*2)
	for i, sample := range buf.Samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
