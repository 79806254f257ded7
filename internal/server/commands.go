// ABOUTME: Operator commands for the test producer console
// ABOUTME: Parses lines like "volume 40", "mute", "unmute" and "play"
package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/pcm-player/internal/protocol"
)

// ParseCommand turns one console line into a player command
func ParseCommand(line string) (protocol.ServerCommand, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return protocol.ServerCommand{}, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "volume", "vol":
		if len(fields) != 2 {
			return protocol.ServerCommand{}, fmt.Errorf("usage: volume <0-100>")
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil || v < 0 || v > 100 {
			return protocol.ServerCommand{}, fmt.Errorf("volume must be 0-100, got %q", fields[1])
		}
		return protocol.ServerCommand{Command: "volume", Volume: v}, nil
	case "mute":
		return protocol.ServerCommand{Command: "mute", Mute: true}, nil
	case "unmute":
		return protocol.ServerCommand{Command: "mute", Mute: false}, nil
	case "play":
		return protocol.ServerCommand{Command: "play"}, nil
	default:
		return protocol.ServerCommand{}, fmt.Errorf("unknown command %q (volume, mute, unmute, play)", fields[0])
	}
}
