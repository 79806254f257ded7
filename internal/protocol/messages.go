// ABOUTME: Stream protocol message type definitions
// ABOUTME: Defines the JSON envelope and payloads exchanged over the websocket
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is sent in both hello messages
const ProtocolVersion = 1

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeAudioChunk    = "audio/chunk"
	TypePlayerUpdate  = "player/update"
	TypeServerCommand = "server/command"
	TypeServerError   = "server/error"
)

// StreamPath is the websocket endpoint on the producer
const StreamPath = "/stream"

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// DecodePayload re-decodes a generic payload into v
func DecodePayload(msg Message, v interface{}) error {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(payloadBytes, v); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", msg.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
	Format     AudioFormat `json:"format"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes the PCM stream format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string      `json:"server_id"`
	Name     string      `json:"name"`
	Version  int         `json:"version"`
	Format   AudioFormat `json:"format"`
}

// AudioChunk carries one base64-encoded PCM chunk in a text frame
type AudioChunk struct {
	Data string `json:"data"`
}

// ClientState reports the player's current state (sent as player/update message)
type ClientState struct {
	State  string `json:"state"`  // "playing" or "idle"
	Volume int    `json:"volume"` // 0-100
	Muted  bool   `json:"muted"`
}

// ServerCommand is a control message from the server
type ServerCommand struct {
	Command string `json:"command"`
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ServerError is sent before the server drops a connection it refuses
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
