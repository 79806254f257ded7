// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager defaults and browse result conversion
package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	config := Config{
		ServiceName: "Test Producer",
		Port:        8927,
	}

	mgr := NewManager(config)
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	defer mgr.Stop()

	if mgr.config.Path != "/stream" {
		t.Errorf("expected default path /stream, got %s", mgr.config.Path)
	}
	if mgr.config.Timeout != 3*time.Second {
		t.Errorf("expected default timeout 3s, got %v", mgr.config.Timeout)
	}
}

func TestTXTRecords(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "x", Port: 1, Path: "/pcm"})
	defer mgr.Stop()

	txt := mgr.txtRecords()
	if len(txt) == 0 || txt[0] != "path=/pcm" {
		t.Errorf("expected path record first, got %v", txt)
	}
}

func TestEntryToServer(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
	}{
		{"ipv4", &mdns.ServiceEntry{Name: "a", AddrV4: net.ParseIP("192.168.1.5"), Port: 8927}, "192.168.1.5:8927"},
		{"ipv6", &mdns.ServiceEntry{Name: "b", AddrV6: net.ParseIP("fe80::1"), Port: 8927}, "[fe80::1]:8927"},
		{"host only", &mdns.ServiceEntry{Name: "c", Host: "box.local.", Port: 9000}, "box.local.:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := entryToServer(tt.entry)
			if server == nil {
				t.Fatal("expected server info")
			}
			if got := server.Addr(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEntryToServerRejectsIncomplete(t *testing.T) {
	if entryToServer(nil) != nil {
		t.Error("expected nil for nil entry")
	}
	if entryToServer(&mdns.ServiceEntry{Name: "no-port", AddrV4: net.ParseIP("10.0.0.1")}) != nil {
		t.Error("expected nil for entry without port")
	}
	if entryToServer(&mdns.ServiceEntry{Name: "no-addr", Port: 1}) != nil {
		t.Error("expected nil for entry without address")
	}
}
