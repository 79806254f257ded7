// ABOUTME: Main player application orchestration
// ABOUTME: Wires the producer connection, playback engine, output device, and UI
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/client"
	"github.com/Resonate-Protocol/pcm-player/internal/discovery"
	"github.com/Resonate-Protocol/pcm-player/internal/protocol"
	"github.com/Resonate-Protocol/pcm-player/internal/ui"
	"github.com/Resonate-Protocol/pcm-player/internal/version"
	"github.com/Resonate-Protocol/pcm-player/pkg/audio/output"
	"github.com/Resonate-Protocol/pcm-player/pkg/playback"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNoServer is returned by Start when discovery finds no producer in time
var ErrNoServer = errors.New("no producer found")

// Config holds player configuration
type Config struct {
	ServerAddr    string // Empty means browse via mDNS
	Name          string
	Backend       string
	PollInterval  time.Duration
	Volume        int
	Enabled       bool
	MaxQueueDepth int

	// DiscoveryTimeout bounds the mDNS wait (default: 10s)
	DiscoveryTimeout time.Duration

	// Opener overrides backend selection
	Opener output.Opener

	// OnStatus receives UI updates; nil when running without the TUI
	OnStatus func(ui.StatusMsg)
}

// Player represents the main player application
type Player struct {
	config    Config
	engine    *playback.Engine
	volume    *output.Volume
	discovery *discovery.Manager
	clientID  string

	mu     sync.Mutex
	client *client.Client

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new player. The output device is not opened until data
// arrives or Play is called.
func New(config Config) (*Player, error) {
	if config.DiscoveryTimeout == 0 {
		config.DiscoveryTimeout = 10 * time.Second
	}
	if config.Name == "" {
		config.Name = "pcm-player"
	}

	p := &Player{
		config:   config,
		volume:   output.NewVolume(config.Volume),
		clientID: uuid.New().String(),
		done:     make(chan struct{}),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	opener := config.Opener
	if opener == nil {
		var err error
		opener, err = output.NewOpener(output.Config{
			Backend:      config.Backend,
			PollInterval: config.PollInterval,
			Volume:       p.volume,
		})
		if err != nil {
			return nil, err
		}
	}

	engine, err := playback.NewEngine(playback.Config{
		Open:              opener,
		Enabled:           config.Enabled,
		MaxQueueDepth:     config.MaxQueueDepth,
		OnPlaybackStarted: p.onPlaybackStarted,
		OnStateChange:     p.onStateChange,
		OnError:           p.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	p.engine = engine

	enabled := config.Enabled
	volume := p.volume.GetVolume()
	p.status(ui.StatusMsg{State: engine.State().String(), Enabled: &enabled, Volume: &volume})

	return p, nil
}

// Engine returns the playback engine
func (p *Player) Engine() *playback.Engine {
	return p.engine
}

// Start resolves the producer, connects, and begins feeding the engine
func (p *Player) Start() error {
	addr, err := p.resolveServer()
	if err != nil {
		return err
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		ClientID:   p.clientID,
		Name:       p.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		Volume: p.volume.GetVolume(),
		Muted:  p.volume.IsMuted(),
	}, p.engine)

	if err := c.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	p.mu.Lock()
	p.client = c
	p.mu.Unlock()

	log.Info().Str("server", addr).Str("client_id", p.clientID).Msg("Connected to producer")
	connected := true
	p.status(ui.StatusMsg{Connected: &connected, ServerName: addr})

	go p.handleCommands(c)
	go p.watchConnection(c)
	if p.config.OnStatus != nil {
		go p.statsLoop()
	}

	return nil
}

// resolveServer returns the configured address or waits for mDNS discovery
func (p *Player) resolveServer() (string, error) {
	if p.config.ServerAddr != "" {
		return p.config.ServerAddr, nil
	}

	log.Info().Str("type", discovery.ServiceType).Msg("Starting producer discovery")
	p.discovery = discovery.NewManager(discovery.Config{ServiceName: p.config.Name})
	if err := p.discovery.Browse(); err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	select {
	case server := <-p.discovery.Servers():
		return server.Addr(), nil
	case <-time.After(p.config.DiscoveryTimeout):
		return "", fmt.Errorf("%w after %v", ErrNoServer, p.config.DiscoveryTimeout)
	case <-p.ctx.Done():
		return "", p.ctx.Err()
	}
}

// Play is the manual play request
func (p *Player) Play() error {
	return p.engine.Enable()
}

// SetVolume changes volume and mute, reporting the new state to the producer
func (p *Player) SetVolume(volume int, muted bool) {
	p.volume.SetVolume(volume)
	p.volume.SetMuted(muted)

	v := p.volume.GetVolume()
	p.status(ui.StatusMsg{Volume: &v, Muted: &muted})
	p.sendState(p.engine.IsDraining())
}

// Done is closed once the producer connection ends or Stop is called
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// handleCommands processes producer commands
func (p *Player) handleCommands(c *client.Client) {
	for {
		select {
		case cmd := <-c.Commands:
			log.Info().Str("command", cmd.Command).Msg("Producer command")
			switch cmd.Command {
			case "volume":
				p.SetVolume(cmd.Volume, p.volume.IsMuted())
			case "mute":
				p.SetVolume(p.volume.GetVolume(), cmd.Mute)
			case "play":
				if err := p.Play(); err != nil {
					log.Warn().Err(err).Msg("Remote play request failed")
				}
			default:
				log.Debug().Str("command", cmd.Command).Msg("Unsupported command")
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// watchConnection reports the end of the producer connection
func (p *Player) watchConnection(c *client.Client) {
	select {
	case <-c.Done():
		log.Warn().Msg("Producer connection ended")
		connected := false
		p.status(ui.StatusMsg{Connected: &connected})
		p.finish()
	case <-p.ctx.Done():
	}
}

// statsLoop periodically updates the UI with engine statistics
func (p *Player) statsLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.engine.Stats()
			p.status(ui.StatusMsg{Stats: &ui.StatsMsg{
				Received:   stats.Received,
				Played:     stats.Played,
				Failed:     stats.Failed,
				Dropped:    stats.Dropped,
				Truncated:  stats.Truncated,
				QueueDepth: stats.QueueDepth,
				QueuedMs:   stats.QueuedDuration.Milliseconds(),
			}})
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) onPlaybackStarted() {
	log.Info().Msg("Playback started")
	enabled := true
	p.status(ui.StatusMsg{Enabled: &enabled})
}

func (p *Player) onStateChange(state playback.State) {
	p.status(ui.StatusMsg{State: state.String()})

	switch state {
	case playback.StateDraining:
		p.sendState(true)
	case playback.StateIdle:
		p.sendState(false)
	}
}

func (p *Player) onError(err error) {
	log.Error().Err(err).Msg("Playback error")
	p.status(ui.StatusMsg{Error: err.Error()})
}

// sendState reports playing/idle to the producer when connected
func (p *Player) sendState(playing bool) {
	p.mu.Lock()
	c := p.client
	p.mu.Unlock()

	if c == nil || !c.IsConnected() {
		return
	}

	state := "idle"
	if playing {
		state = "playing"
	}
	if err := c.SendState(protocol.ClientState{
		State:  state,
		Volume: p.volume.GetVolume(),
		Muted:  p.volume.IsMuted(),
	}); err != nil {
		log.Debug().Err(err).Msg("Failed to send state")
	}
}

func (p *Player) status(msg ui.StatusMsg) {
	if p.config.OnStatus != nil {
		p.config.OnStatus(msg)
	}
}

func (p *Player) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// Stop closes the connection and disposes the engine
func (p *Player) Stop() error {
	p.cancel()

	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c != nil {
		c.Close()
	}

	if p.discovery != nil {
		p.discovery.Stop()
	}

	err := p.engine.Dispose()
	p.finish()
	return err
}
