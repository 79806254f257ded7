// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the fundamental types used by the player.
//
// The player handles exactly one stream format: 16-bit little-endian PCM,
// mono, 24000 Hz (StreamFormat). Decoded audio travels as a Buffer of
// normalized float32 samples in [-1.0, 1.0].
//
// Example:
//
//	buf := audio.Buffer{
//	    Samples: samples,
//	    Format:  audio.StreamFormat,
//	}
//	log.Printf("chunk plays for %v", buf.Duration())
package audio
