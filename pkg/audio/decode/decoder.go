// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for turning encoded chunks into sample buffers
package decode

import "github.com/Resonate-Protocol/pcm-player/pkg/audio"

// Decoder decodes one encoded chunk into a sample buffer
type Decoder interface {
	// Decode converts encoded audio data to normalized samples
	Decode(data []byte) (audio.Buffer, error)

	// Close releases decoder resources
	Close() error
}
