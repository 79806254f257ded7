// ABOUTME: Encoder interface definition
// ABOUTME: Turns decoded buffers back into wire bytes
package encode

import "github.com/Resonate-Protocol/pcm-player/pkg/audio"

// Encoder encodes normalized sample buffers to wire format
type Encoder interface {
	// Encode converts a buffer to encoded audio data
	Encode(buf audio.Buffer) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
