// ABOUTME: Audio decoder package for the player's fixed PCM format
// ABOUTME: Provides the PCM16 sample decoder and transport unwrapping
// Package decode turns transport-encoded PCM16 chunks into sample buffers.
//
// PCM16 is a pure function and safe for concurrent use. PCMDecoder wraps it
// with format validation and bookkeeping for malformed (odd-length) chunks.
//
// Example:
//
//	raw, err := decode.Base64(msg.Data)
//	samples := decode.PCM16(raw)
package decode
