// ABOUTME: Audio encoder package for producing PCM16 wire data
// ABOUTME: Provides the Encoder interface and the PCM implementation
// Package encode is the inverse of package decode.
//
// Producers and file writers use it to turn samples into the
// little-endian PCM16 bytes the player consumes.
//
// Example:
//
//	encoder, err := encode.NewPCM(audio.StreamFormat)
//	data, err := encoder.Encode(buf)
package encode
