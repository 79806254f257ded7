// ABOUTME: Audio sources for the test producer
// ABOUTME: Tone generator, MP3 (file or HTTP) and FLAC, all delivered as 24kHz mono int16
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/rs/zerolog/log"
)

// ErrSampleRate is returned for sources that are not already at the stream rate
var ErrSampleRate = errors.New("source sample rate must be 24000 Hz (no resampling)")

// AudioSource provides mono PCM samples at audio.SampleRate
type AudioSource interface {
	// Read fills samples and returns how many were written. io.EOF marks
	// the end of a non-looping source.
	Read(samples []int16) (int, error)
	// Name describes the source for logs
	Name() string
	// Close closes the audio source
	Close() error
}

// NewAudioSource creates an audio source from a file path or HTTP URL.
// An empty path selects the test tone.
func NewAudioSource(pathOrURL string) (AudioSource, error) {
	if pathOrURL == "" {
		return NewTestToneSource(440), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		log.Info().Str("url", pathOrURL).Msg("Streaming from HTTP URL")
		return NewHTTPMP3Source(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", pathOrURL)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3Source(pathOrURL)
	case ".flac":
		return NewFLACSource(pathOrURL)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

// downmixStereo averages interleaved little-endian stereo int16 frames into out
func downmixStereo(pcm []byte, out []int16) int {
	frames := len(pcm) / 4
	if frames > len(out) {
		frames = len(out)
	}
	for i := 0; i < frames; i++ {
		left := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		right := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		out[i] = int16((left + right) / 2)
	}
	return frames
}

// MP3Source reads from an MP3 file, looping at the end
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	title   string
	scratch []byte
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	if decoder.SampleRate() != audio.SampleRate {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d Hz", ErrSampleRate, filePath, decoder.SampleRate())
	}

	title := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	log.Info().Str("title", title).Int("sample_rate", decoder.SampleRate()).Msg("Loaded MP3")

	return &MP3Source{file: f, decoder: decoder, title: title}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	// go-mp3 always decodes to 16-bit stereo
	need := len(samples) * 4
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]

	n, err := io.ReadFull(s.decoder, buf)
	frames := downmixStereo(buf[:n], samples)

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if _, seekErr := s.decoder.Seek(0, io.SeekStart); seekErr != nil {
			return frames, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		return frames, nil
	}
	return frames, err
}

func (s *MP3Source) Name() string { return "mp3:" + s.title }
func (s *MP3Source) Close() error { return s.file.Close() }

// HTTPMP3Source streams MP3 from an HTTP URL until the body ends
type HTTPMP3Source struct {
	url      string
	response *http.Response
	decoder  *mp3.Decoder
	scratch  []byte
}

// NewHTTPMP3Source creates a new HTTP MP3 streaming source
func NewHTTPMP3Source(url string) (*HTTPMP3Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	if decoder.SampleRate() != audio.SampleRate {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream is %d Hz", ErrSampleRate, decoder.SampleRate())
	}

	return &HTTPMP3Source{url: url, response: resp, decoder: decoder}, nil
}

func (s *HTTPMP3Source) Read(samples []int16) (int, error) {
	need := len(samples) * 4
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]

	n, err := io.ReadFull(s.decoder, buf)
	frames := downmixStereo(buf[:n], samples)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return frames, err
}

func (s *HTTPMP3Source) Name() string { return "http:" + s.url }
func (s *HTTPMP3Source) Close() error { return s.response.Body.Close() }

// FLACSource reads from a FLAC file, looping at the end
type FLACSource struct {
	file     *os.File
	stream   *flac.Stream
	channels int
	bitDepth int
	title    string

	// Decoded frames not yet handed out
	pending []int16
}

// NewFLACSource creates a new FLAC audio source
func NewFLACSource(filePath string) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	if int(info.SampleRate) != audio.SampleRate {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d Hz", ErrSampleRate, filePath, info.SampleRate)
	}
	if info.BitsPerSample < 16 {
		f.Close()
		return nil, fmt.Errorf("unsupported FLAC bit depth: %d", info.BitsPerSample)
	}

	title := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	log.Info().
		Str("title", title).
		Uint8("channels", info.NChannels).
		Uint8("bit_depth", info.BitsPerSample).
		Msg("Loaded FLAC")

	return &FLACSource{
		file:     f,
		stream:   stream,
		channels: int(info.NChannels),
		bitDepth: int(info.BitsPerSample),
		title:    title,
	}, nil
}

func (s *FLACSource) Read(samples []int16) (int, error) {
	written := 0

	for written < len(samples) {
		if len(s.pending) > 0 {
			n := copy(samples[written:], s.pending)
			s.pending = s.pending[n:]
			written += n
			continue
		}

		frame, err := s.stream.ParseNext()
		if err == io.EOF {
			if err := s.rewind(); err != nil {
				return written, err
			}
			continue
		}
		if err != nil {
			return written, err
		}

		shift := uint(s.bitDepth - 16)
		block := int(frame.BlockSize)
		for i := 0; i < block; i++ {
			var sum int32
			for ch := 0; ch < s.channels; ch++ {
				sum += frame.Subframes[ch].Samples[i] >> shift
			}
			s.pending = append(s.pending, int16(sum/int32(s.channels)))
		}
	}

	return written, nil
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACSource) Name() string { return "flac:" + s.title }
func (s *FLACSource) Close() error { return s.file.Close() }
