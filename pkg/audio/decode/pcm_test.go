// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests PCM16 normalization, odd-length chunks and base64 unwrapping
package decode

import (
	"encoding/base64"
	"testing"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	decoder, err := NewPCM(audio.StreamFormat)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestNewPCM_InvalidFormat(t *testing.T) {
	tests := []struct {
		name          string
		format        audio.Format
		expectedError string
	}{
		{
			name:          "codec",
			format:        audio.Format{Codec: "opus", SampleRate: 24000, Channels: 1, BitDepth: 16},
			expectedError: "invalid codec for PCM decoder: opus",
		},
		{
			name:          "bit depth",
			format:        audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1, BitDepth: 24},
			expectedError: "unsupported bit depth: 24 (supported: 16)",
		},
		{
			name:          "channels",
			format:        audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 2, BitDepth: 16},
			expectedError: "unsupported channel count: 2 (supported: 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder, err := NewPCM(tt.format)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if decoder != nil {
				t.Fatal("expected decoder to be nil")
			}
			if err.Error() != tt.expectedError {
				t.Errorf("expected error %q, got %q", tt.expectedError, err.Error())
			}
		})
	}
}

func TestPCM16(t *testing.T) {
	// 0x00,0x01 -> 256; 0x00,0x80 -> -32768; 0xFF,0x7F -> 32767; 0xFF,0xFF -> -1
	input := []byte{0x00, 0x01, 0x00, 0x80, 0xFF, 0x7F, 0xFF, 0xFF}
	output := PCM16(input)

	expected := []float32{256.0 / 32768.0, -1.0, 32767.0 / 32768.0, -1.0 / 32768.0}
	if len(output) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(output))
	}
	for i := range expected {
		if output[i] != expected[i] {
			t.Errorf("sample %d: expected %v, got %v", i, expected[i], output[i])
		}
	}
}

func TestPCM16_Range(t *testing.T) {
	// Every possible int16 value, little-endian
	input := make([]byte, 65536*2)
	for v := 0; v < 65536; v++ {
		input[v*2] = byte(v)
		input[v*2+1] = byte(v >> 8)
	}

	output := PCM16(input)
	if len(output) != 65536 {
		t.Fatalf("expected 65536 samples, got %d", len(output))
	}
	for i, s := range output {
		if s < -1.0 || s > 1.0 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestPCM16_Lengths(t *testing.T) {
	tests := []struct {
		bytes    int
		expected int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{6, 3},
	}

	for _, tt := range tests {
		output := PCM16(make([]byte, tt.bytes))
		if len(output) != tt.expected {
			t.Errorf("%d bytes: expected %d samples, got %d", tt.bytes, tt.expected, len(output))
		}
	}
}

func TestPCM16_NoCrossChunkState(t *testing.T) {
	chunk := []byte{0x34, 0x12, 0xCD, 0xAB}
	first := PCM16(chunk)

	// Decoding something else in between must not change the result
	PCM16([]byte{0xFF, 0xFF, 0x00})

	second := PCM16(chunk)
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("sample %d differs between decodes: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestPCMDecode_OddLength(t *testing.T) {
	decoder, err := NewPCM(audio.StreamFormat)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	buf, err := decoder.Decode([]byte{0x00, 0x40, 0x7F})
	if err != nil {
		t.Fatalf("odd-length chunk should not fail: %v", err)
	}

	if len(buf.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(buf.Samples))
	}
	if buf.Samples[0] != 0.5 {
		t.Errorf("expected 0.5, got %v", buf.Samples[0])
	}
	if !buf.Format.Equal(audio.StreamFormat) {
		t.Errorf("expected stream format, got %+v", buf.Format)
	}
	if decoder.Truncated() != 1 {
		t.Errorf("expected 1 truncated chunk, got %d", decoder.Truncated())
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	decoder, err := NewPCM(audio.StreamFormat)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	buf, err := decoder.Decode([]byte{})
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}

	if len(buf.Samples) != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", len(buf.Samples))
	}
	if decoder.Truncated() != 0 {
		t.Errorf("expected no truncated chunks, got %d", decoder.Truncated())
	}
}

func TestBase64(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	encoded := base64.StdEncoding.EncodeToString(raw)

	data, err := Base64(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("expected %v, got %v", raw, data)
	}

	if _, err := Base64("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
