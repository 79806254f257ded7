// ABOUTME: Audio streaming engine for the test producer
// ABOUTME: Cuts the source into irregular chunks and paces them in real time
package server

import (
	"encoding/base64"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/protocol"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/encode"
	"github.com/rs/zerolog/log"
)

const (
	// Chunk sizes are drawn uniformly from this range
	DefaultMinChunkMs = 10
	DefaultMaxChunkMs = 120

	// Send audio this far ahead of real time
	BufferAheadMs = 200
)

// AudioEngine manages audio generation and streaming
type AudioEngine struct {
	server *Server
	source AudioSource
	rng    *rand.Rand

	minFrames int
	maxFrames int
	oddEvery  int

	// Active clients
	clients   map[string]*Client
	clientsMu sync.RWMutex

	chunks uint64
	frames uint64

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAudioEngine creates a new audio engine
func NewAudioEngine(server *Server, source AudioSource) *AudioEngine {
	cfg := server.config

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	minMs, maxMs := cfg.MinChunkMs, cfg.MaxChunkMs
	if minMs <= 0 {
		minMs = DefaultMinChunkMs
	}
	if maxMs < minMs {
		maxMs = minMs
	}

	return &AudioEngine{
		server:    server,
		source:    source,
		rng:       rand.New(rand.NewSource(seed)),
		minFrames: msToFrames(minMs),
		maxFrames: msToFrames(maxMs),
		oddEvery:  cfg.OddEvery,
		clients:   make(map[string]*Client),
		stopChan:  make(chan struct{}),
	}
}

func msToFrames(ms int) int {
	return audio.SampleRate * ms / 1000
}

// Start streams until Stop is called or a non-looping source ends
func (e *AudioEngine) Start() {
	log.Info().Str("source", e.source.Name()).Msg("Audio engine starting")

	start := time.Now()
	ahead := time.Duration(BufferAheadMs) * time.Millisecond

	for {
		samples := make([]int16, e.nextChunkFrames())
		n, err := e.source.Read(samples)
		if n > 0 {
			e.broadcast(e.encodeChunk(samples[:n]))
			e.frames += uint64(n)
		}
		if errors.Is(err, io.EOF) {
			log.Info().Uint64("chunks", e.chunks).Msg("Audio source ended")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Audio source read failed")
			return
		}

		due := start.Add(framesToDuration(e.frames) - ahead)
		if wait := time.Until(due); wait > 0 {
			select {
			case <-time.After(wait):
			case <-e.stopChan:
				log.Info().Msg("Audio engine stopping")
				return
			}
		} else {
			select {
			case <-e.stopChan:
				log.Info().Msg("Audio engine stopping")
				return
			default:
			}
		}
	}
}

func framesToDuration(frames uint64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(audio.SampleRate)
}

// Stop stops the audio engine
func (e *AudioEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

// AddClient adds a client to receive audio
func (e *AudioEngine) AddClient(client *Client) {
	e.clientsMu.Lock()
	e.clients[client.ID] = client
	e.clientsMu.Unlock()

	log.Info().Str("client", client.Name).Msg("Audio engine: added client")
}

// RemoveClient removes a client from audio streaming
func (e *AudioEngine) RemoveClient(client *Client) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()

	delete(e.clients, client.ID)
	log.Info().Str("client", client.Name).Msg("Audio engine: removed client")
}

// nextChunkFrames picks the size of the next chunk
func (e *AudioEngine) nextChunkFrames() int {
	if e.maxFrames <= e.minFrames {
		return e.minFrames
	}
	return e.minFrames + e.rng.Intn(e.maxFrames-e.minFrames+1)
}

// encodeChunk encodes samples as little-endian PCM16. Every oddEvery-th
// chunk carries one stray trailing byte, which players must discard.
func (e *AudioEngine) encodeChunk(samples []int16) []byte {
	e.chunks++

	data := encode.PCM16(samples)
	if e.oddEvery > 0 && e.chunks%uint64(e.oddEvery) == 0 {
		data = append(data, 0)
	}
	return data
}

// broadcast sends one chunk to all clients
func (e *AudioEngine) broadcast(data []byte) {
	var msg interface{} = data
	if e.server.config.JSONChunks {
		msg = protocol.Message{
			Type:    protocol.TypeAudioChunk,
			Payload: protocol.AudioChunk{Data: base64.StdEncoding.EncodeToString(data)},
		}
	}

	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()

	for _, client := range e.clients {
		if err := client.send(msg); err != nil {
			log.Warn().Err(err).Str("client", client.Name).Msg("Error sending audio")
		}
	}
}
