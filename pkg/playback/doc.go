// ABOUTME: Playback engine package
// ABOUTME: Gapless, strictly ordered playback of an irregular chunk stream
// Package playback turns a live stream of variable-length PCM chunks into
// continuous output.
//
// Chunks are decoded and appended to a FIFO Queue. The Engine keeps exactly
// one buffer scheduled with the output device; the device's completion
// callback pulls the next one, so the loop sustains itself until the queue
// runs dry and the engine goes Idle. New data restarts it.
//
// Lifecycle: Uninitialized -> Idle <-> Draining -> Disposed. The device is
// opened lazily by Enable or the first buffer, and released once by Dispose.
//
// Example:
//
//	open, _ := output.NewOpener(output.Config{})
//	engine, err := playback.NewEngine(playback.Config{
//	    Open:              open,
//	    OnPlaybackStarted: func() { log.Print("playing") },
//	})
//	err = engine.OnDataAvailable(chunk)
//	defer engine.Dispose()
package playback
