// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Device contract plus oto, malgo and PortAudio backends
// Package output provides audio playback devices.
//
// A Device plays one buffer at a time on behalf of the caller and reports,
// through a completion callback, when that buffer has been played out. The
// oto backend is the default; malgo is available everywhere miniaudio builds,
// and PortAudio requires the portaudio build tag.
//
// Example:
//
//	open, err := output.NewOpener(output.Config{Backend: "oto"})
//	dev, err := open(audio.StreamFormat)
//	err = dev.Schedule(buf, func() { log.Print("finished") })
package output
