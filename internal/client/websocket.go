// ABOUTME: WebSocket client that receives PCM chunks from a producer
// ABOUTME: Handles connection, handshake, and hands every chunk to a Sink
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/protocol"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/decode"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Sink receives raw PCM chunks in arrival order
type Sink interface {
	OnDataAvailable(chunk []byte) error
}

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	DeviceInfo protocol.DeviceInfo
	Format     audio.Format

	// Volume and Muted are reported in the first player/update
	Volume int
	Muted  bool

	// HandshakeTimeout bounds the wait for server/hello (default: 5s)
	HandshakeTimeout time.Duration
}

// Client represents a WebSocket client
type Client struct {
	config  Config
	sink    Sink
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Commands carries control messages from the producer
	Commands chan protocol.ServerCommand

	// State
	connected bool
	chunks    atomic.Int64
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new WebSocket client
func NewClient(config Config, sink Sink) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.StreamFormat
	}

	return &Client{
		config:   config,
		sink:     sink,
		Commands: make(chan protocol.ServerCommand, 10),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: protocol.StreamPath}
	log.Info().Str("url", u.String()).Msg("Connecting to producer")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    protocol.ProtocolVersion,
		DeviceInfo: &c.config.DeviceInfo,
		Format:     formatToProtocol(c.config.Format),
	}

	if err := c.sendJSON(protocol.Message{Type: protocol.TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	// Wait for server/hello (with timeout)
	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	if msg.Type != protocol.TypeServerHello {
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	var serverHello protocol.ServerHello
	if err := protocol.DecodePayload(msg, &serverHello); err != nil {
		return err
	}

	if serverHello.Format != formatToProtocol(c.config.Format) {
		// The format is fixed; a producer announcing anything else is misconfigured
		log.Warn().
			Str("codec", serverHello.Format.Codec).
			Int("sample_rate", serverHello.Format.SampleRate).
			Int("channels", serverHello.Format.Channels).
			Msg("Producer announced a different stream format; playing as PCM16 mono 24kHz")
	}

	log.Info().
		Str("server_id", serverHello.ServerID).
		Str("server_name", serverHello.Name).
		Msg("Handshake complete with producer")

	return c.SendState(protocol.ClientState{State: "idle", Volume: c.config.Volume, Muted: c.config.Muted})
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				log.Warn().Err(err).Msg("Read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.deliver(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

// deliver hands one raw PCM chunk to the sink
func (c *Client) deliver(chunk []byte) {
	n := c.chunks.Add(1)
	if n <= 5 {
		log.Debug().Int64("chunk", n).Int("bytes", len(chunk)).Msg("Received audio chunk")
	}

	if err := c.sink.OnDataAvailable(chunk); err != nil {
		log.Warn().Err(err).Int64("chunk", n).Msg("Sink rejected chunk")
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("Failed to parse JSON message")
		return
	}

	switch msg.Type {
	case protocol.TypeAudioChunk:
		var chunk protocol.AudioChunk
		if err := protocol.DecodePayload(msg, &chunk); err != nil {
			log.Warn().Err(err).Msg("Bad audio/chunk")
			return
		}
		raw, err := decode.Base64(chunk.Data)
		if err != nil {
			log.Warn().Err(err).Msg("Bad audio/chunk")
			return
		}
		c.deliver(raw)

	case protocol.TypeServerCommand:
		var cmd protocol.ServerCommand
		if err := protocol.DecodePayload(msg, &cmd); err != nil {
			log.Warn().Err(err).Msg("Bad server/command")
			return
		}
		select {
		case c.Commands <- cmd:
		case <-c.ctx.Done():
		}

	default:
		log.Debug().Str("type", msg.Type).Msg("Unknown message type")
	}
}

// SendState sends a player/update message
func (c *Client) SendState(state protocol.ClientState) error {
	return c.sendJSON(protocol.Message{Type: protocol.TypePlayerUpdate, Payload: state})
}

// Chunks returns how many chunks have been delivered to the sink
func (c *Client) Chunks() int64 {
	return c.chunks.Load()
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Info().Msg("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func formatToProtocol(f audio.Format) protocol.AudioFormat {
	return protocol.AudioFormat{
		Codec:      f.Codec,
		Channels:   f.Channels,
		SampleRate: f.SampleRate,
		BitDepth:   f.BitDepth,
	}
}
