// ABOUTME: Test producer for the PCM player
// ABOUTME: Accepts websocket players and streams PCM16 mono 24kHz chunks to them
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/discovery"
	"github.com/Resonate-Protocol/pcm-player/internal/protocol"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	AudioFile  string  // MP3/FLAC path or HTTP MP3 URL. Empty = test tone
	ToneHz     float64 // Test tone frequency (default 440)

	// JSONChunks sends audio/chunk text frames with base64 data instead of binary frames
	JSONChunks bool

	MinChunkMs int
	MaxChunkMs int
	OddEvery   int   // Add a stray trailing byte to every Nth chunk (0 = never)
	Seed       int64 // Chunk size RNG seed (0 = time based)
}

// Server represents the test producer
type Server struct {
	config   Config
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*Client
	clientsMu sync.RWMutex

	audioEngine *AudioEngine
	mdnsManager *discovery.Manager

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected player
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	// State as last reported by player/update
	State  string
	Volume int
	Muted  bool

	// Output channel for messages
	sendChan chan interface{}
	closed   bool

	mu sync.RWMutex
}

// ClientInfo is a snapshot of a connected player
type ClientInfo struct {
	ID     string
	Name   string
	State  string
	Volume int
	Muted  bool
}

// New creates a new server instance
func New(config Config) *Server {
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Local network test tool; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(protocol.StreamPath, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the stream endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop is called
func (s *Server) Start() error {
	log.Info().Str("name", s.config.Name).Str("id", s.serverID).Msg("Server starting")

	source, err := NewAudioSource(s.config.AudioFile)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	if tone, ok := source.(*TestToneSource); ok && s.config.ToneHz > 0 {
		tone.frequency = s.config.ToneHz
	}
	defer source.Close()

	s.audioEngine = NewAudioEngine(s, source)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        protocol.StreamPath,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Warn().Err(err).Msg("Failed to start mDNS advertisement")
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.audioEngine.Start()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Info().Str("addr", addr).Str("path", protocol.StreamPath).Msg("WebSocket server listening")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Info().Msg("Server shutting down...")
	case err := <-errChan:
		log.Error().Err(err).Msg("HTTP server error")
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.audioEngine.Stop()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	// Hijacked websocket connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	log.Info().Msg("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("New WebSocket connection")
	s.handleConnection(conn)
}

// handleConnection manages a player connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Debug().Msg("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		log.Warn().Err(err).Msg("Error reading hello")
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeClientHello {
		log.Warn().Str("type", msg.Type).Msg("Expected client/hello")
		return
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		log.Warn().Err(err).Msg("Bad client/hello")
		return
	}

	if hello.ClientID == "" {
		log.Warn().Msg("Client hello missing ClientID")
		return
	}
	if hello.Name == "" {
		hello.Name = hello.ClientID
	}

	log.Info().Str("name", hello.Name).Str("id", hello.ClientID).Msg("Client hello")

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		State:    "idle",
		Volume:   100,
		sendChan: make(chan interface{}, 100),
	}

	// Check for duplicate client ID and register atomically
	s.clientsMu.Lock()
	if existing, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		log.Warn().Str("id", hello.ClientID).Str("name", existing.Name).Msg("Rejecting duplicate client ID")

		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerError,
			Payload: protocol.ServerError{
				Error:   "duplicate_client_id",
				Message: "Client ID already connected",
			},
		})
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		client.close()
		log.Info().Str("name", client.Name).Msg("Client disconnected")
	}()

	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.ProtocolVersion,
		Format: protocol.AudioFormat{
			Codec:      audio.StreamFormat.Codec,
			Channels:   audio.StreamFormat.Channels,
			SampleRate: audio.StreamFormat.SampleRate,
			BitDepth:   audio.StreamFormat.BitDepth,
		},
	}

	if err := client.send(protocol.Message{Type: protocol.TypeServerHello, Payload: serverHello}); err != nil {
		log.Warn().Err(err).Msg("Error sending server hello")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	if s.audioEngine != nil {
		s.audioEngine.AddClient(client)
		defer s.audioEngine.RemoveClient(client)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		s.handleClientMessage(client, data)
	}
}

// clientWriter sends queued messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// Unblocks the reader so the client is unregistered
	defer client.Conn.Close()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			switch v := msg.(type) {
			case []byte:
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Warn().Err(err).Msg("Error writing binary message")
					return
				}
			default:
				if err := client.Conn.WriteJSON(v); err != nil {
					log.Warn().Err(err).Msg("Error writing text message")
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage processes messages from players
func (s *Server) handleClientMessage(client *Client, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("Error unmarshaling message")
		return
	}

	switch msg.Type {
	case protocol.TypePlayerUpdate:
		var state protocol.ClientState
		if err := protocol.DecodePayload(msg, &state); err != nil {
			log.Warn().Err(err).Msg("Bad player/update")
			return
		}

		client.mu.Lock()
		client.State = state.State
		client.Volume = state.Volume
		client.Muted = state.Muted
		client.mu.Unlock()

		log.Info().
			Str("client", client.Name).
			Str("state", state.State).
			Int("volume", state.Volume).
			Bool("muted", state.Muted).
			Msg("Client state")
	default:
		log.Debug().Str("type", msg.Type).Msg("Unknown message type")
	}
}

// Broadcast sends a command to every connected player
func (s *Server) Broadcast(cmd protocol.ServerCommand) {
	msg := protocol.Message{Type: protocol.TypeServerCommand, Payload: cmd}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if err := client.send(msg); err != nil {
			log.Warn().Err(err).Str("client", client.Name).Msg("Error sending command")
		}
	}
}

// Clients returns a snapshot of connected players sorted by name
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	infos := make([]ClientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		client.mu.RLock()
		infos = append(infos, ClientInfo{
			ID:     client.ID,
			Name:   client.Name,
			State:  client.State,
			Volume: client.Volume,
			Muted:  client.Muted,
		})
		client.mu.RUnlock()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// send queues a message without blocking
func (c *Client) send(msg interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client closed")
	}

	select {
	case c.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}
