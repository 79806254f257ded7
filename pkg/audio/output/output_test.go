// ABOUTME: Audio output interface tests
// ABOUTME: Verifies Device implementations and backend selection
package output

import (
	"errors"
	"testing"
)

func TestDevicesImplementOutput(t *testing.T) {
	var _ Device = (*Oto)(nil)
	var _ Device = (*Malgo)(nil)
	var _ Device = (*PortAudio)(nil)
}

func TestNewOpener(t *testing.T) {
	for _, backend := range []string{"", "oto", "malgo", "portaudio"} {
		open, err := NewOpener(Config{Backend: backend})
		if err != nil {
			t.Errorf("backend %q: unexpected error: %v", backend, err)
		}
		if open == nil {
			t.Errorf("backend %q: expected opener", backend)
		}
	}
}

func TestNewOpener_UnknownBackend(t *testing.T) {
	open, err := NewOpener(Config{Backend: "alsa-direct"})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	if open != nil {
		t.Error("expected nil opener")
	}
}
