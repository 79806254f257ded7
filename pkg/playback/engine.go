// ABOUTME: Completion-driven playback engine
// ABOUTME: Drains the queue one buffer at a time into the output device
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/decode"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/output"
	"github.com/rs/zerolog/log"
)

// ErrNoOpener is returned by NewEngine when no device opener is configured
var ErrNoOpener = errors.New("no output opener configured")

// Config holds engine configuration
type Config struct {
	// Open creates the device context on first use
	Open output.Opener

	// Format is the stream format (default: audio.StreamFormat)
	Format audio.Format

	// Enabled is the initial enablement flag. When false, the first Enable
	// call reports OnPlaybackStarted.
	Enabled bool

	// MaxQueueDepth caps queued buffers, evicting the oldest (0 = unbounded)
	MaxQueueDepth int

	// OnPlaybackStarted is called when Enable starts output from the disabled state
	OnPlaybackStarted func()

	// OnStateChange is called on every lifecycle transition
	OnStateChange func(State)

	// OnError is called for device open and scheduling failures
	OnError func(error)
}

// Stats contains playback statistics
type Stats struct {
	Received       int64 // Buffers accepted into the queue
	Played         int64 // Buffers whose playback completed
	Failed         int64 // Buffers the device refused to schedule
	Dropped        int64 // Buffers evicted by MaxQueueDepth
	Rejected       int64 // Buffers offered after Dispose
	Truncated      int64 // Odd-length chunks that lost a trailing byte
	QueueDepth     int
	QueuedDuration time.Duration
}

// Engine turns an irregular stream of buffers into continuous output.
// All methods are safe for concurrent use.
type Engine struct {
	config  Config
	decoder *decode.PCMDecoder

	mu         sync.Mutex
	queue      *Queue
	device     output.Device
	state      State
	enabled    bool
	openFailed bool // set by a failed open, cleared only by Enable
	nextSeq    uint64
	current    uint64 // Seq of the scheduled buffer, 0 when none
	stats      Stats

	// Host callbacks in transition order, delivered by one goroutine at a time
	events      []func()
	dispatching bool
}


// NewEngine creates an engine with the given configuration
func NewEngine(config Config) (*Engine, error) {
	if config.Open == nil {
		return nil, ErrNoOpener
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.StreamFormat
	}

	decoder, err := decode.NewPCM(config.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Engine{
		config:  config,
		decoder: decoder,
		queue:   NewQueue(config.MaxQueueDepth),
		state:   StateUninitialized,
		enabled: config.Enabled,
	}, nil
}

// Enable is the manual play request
func (e *Engine) Enable() error {
	e.mu.Lock()
	err := e.enableLocked()
	e.mu.Unlock()
	e.dispatch()
	return err
}

func (e *Engine) enableLocked() error {
	if e.state == StateDisposed {
		log.Debug().Msg("Enable ignored: engine disposed")
		return nil
	}

	if e.state == StateUninitialized {
		e.openFailed = false
		if err := e.openLocked(); err != nil {
			return err
		}
	}

	if !e.enabled {
		e.enabled = true
		log.Info().Msg("Playback started by manual request")
		if cb := e.config.OnPlaybackStarted; cb != nil {
			e.emitLocked(cb)
		}
	}

	// A running drain loop already owns the device
	if e.state == StateIdle {
		e.drainLocked()
	}
	return nil
}

// OnDataAvailable decodes a transport chunk and queues it for playback
func (e *Engine) OnDataAvailable(chunk []byte) error {
	buf, err := e.decoder.Decode(chunk)
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return e.Push(buf)
}

// Push queues a decoded buffer, starting the drain loop if it is idle
func (e *Engine) Push(buf audio.Buffer) error {
	e.mu.Lock()
	err := e.pushLocked(buf)
	e.mu.Unlock()
	e.dispatch()
	return err
}

func (e *Engine) pushLocked(buf audio.Buffer) error {
	if e.state == StateDisposed {
		e.stats.Rejected++
		log.Debug().Int("samples", len(buf.Samples)).Msg("Dropping buffer: engine disposed")
		return nil
	}

	e.nextSeq++
	buf.Seq = e.nextSeq
	if buf.Format == (audio.Format{}) {
		buf.Format = e.config.Format
	}

	e.stats.Received++
	if evicted, dropped := e.queue.Enqueue(buf); dropped {
		e.stats.Dropped++
		log.Warn().
			Uint64("seq", evicted.Seq).
			Int("max_depth", e.config.MaxQueueDepth).
			Msg("Queue full: dropped oldest buffer")
	}

	switch e.state {
	case StateUninitialized:
		if e.openFailed {
			// Held until Enable retries the open
			return nil
		}
		if err := e.openLocked(); err != nil {
			return err
		}
		e.drainLocked()
	case StateIdle:
		e.drainLocked()
	case StateDraining:
		// The running loop picks it up on the next completion
	}
	return nil
}

// openLocked creates the device context and moves to Idle
func (e *Engine) openLocked() error {
	device, err := e.config.Open(e.config.Format)
	if err != nil {
		err = fmt.Errorf("failed to open output device: %w", err)
		log.Error().Err(err).Msg("Output initialization failed")
		e.openFailed = true
		e.reportLocked(err)
		return err
	}

	e.device = device
	e.setStateLocked(StateIdle)
	return nil
}

// drainLocked pulls the next buffer and schedules it. A buffer the device
// refuses counts as finished and the next one is tried straight away.
func (e *Engine) drainLocked() {
	for {
		buf, ok := e.queue.TryPull()
		if !ok {
			e.current = 0
			e.setStateLocked(StateIdle)
			return
		}

		e.setStateLocked(StateDraining)

		seq := buf.Seq
		e.current = seq
		err := e.device.Schedule(buf, func() { e.complete(seq) })
		if err == nil {
			return
		}

		e.current = 0
		e.stats.Failed++
		err = fmt.Errorf("failed to schedule buffer %d: %w", seq, err)
		log.Warn().Err(err).Msg("Skipping buffer")
		e.reportLocked(err)
	}
}

// complete is the device's completion callback for buffer seq
func (e *Engine) complete(seq uint64) {
	e.mu.Lock()
	if e.state != StateDraining || e.current != seq {
		e.mu.Unlock()
		log.Debug().Uint64("seq", seq).Msg("Ignoring stale completion")
		return
	}

	e.stats.Played++
	e.current = 0
	e.drainLocked()
	e.mu.Unlock()
	e.dispatch()
}

// Dispose releases the device context. Further calls are no-ops.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return nil
	}

	device := e.device
	e.device = nil
	e.current = 0
	e.queue.Clear()
	e.setStateLocked(StateDisposed)
	e.mu.Unlock()

	// Closed outside the lock: a backend may be waiting to deliver a completion
	var err error
	if device != nil {
		if cerr := device.Close(); cerr != nil {
			err = fmt.Errorf("failed to close output device: %w", cerr)
			log.Warn().Err(err).Msg("Dispose")
		}
	}

	log.Info().Msg("Playback engine disposed")
	e.dispatch()
	return err
}

// SetEnabled sets the externally controlled enablement flag
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// Enabled returns the enablement flag
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// IsDraining reports whether a buffer is currently being played
func (e *Engine) IsDraining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateDraining
}

// State returns the lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns playback statistics
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	stats.Truncated = e.decoder.Truncated()
	stats.QueueDepth = e.queue.Len()
	stats.QueuedDuration = e.queue.Duration()
	return stats
}

func (e *Engine) setStateLocked(state State) {
	if e.state == state {
		return
	}
	log.Debug().Stringer("from", e.state).Stringer("to", state).Msg("Engine state change")
	e.state = state
	if cb := e.config.OnStateChange; cb != nil {
		e.emitLocked(func() { cb(state) })
	}
}

func (e *Engine) reportLocked(err error) {
	if cb := e.config.OnError; cb != nil {
		e.emitLocked(func() { cb(err) })
	}
}

// emitLocked queues a host callback behind those already emitted
func (e *Engine) emitLocked(fn func()) {
	e.events = append(e.events, fn)
}

// dispatch runs queued callbacks outside the lock. If another goroutine is
// already dispatching it delivers ours too, so the host sees transitions in
// the order they happened. Callbacks may call back into the engine.
func (e *Engine) dispatch() {
	e.mu.Lock()
	if e.dispatching {
		e.mu.Unlock()
		return
	}
	e.dispatching = true
	for len(e.events) > 0 {
		batch := e.events
		e.events = nil
		e.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		e.mu.Lock()
	}
	e.dispatching = false
	e.mu.Unlock()
}
