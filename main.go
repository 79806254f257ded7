// ABOUTME: Entry point for the PCM stream player
// ABOUTME: Loads config, parses CLI flags, and runs the player with or without the TUI
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/app"
	"github.com/Resonate-Protocol/pcm-player/internal/config"
	"github.com/Resonate-Protocol/pcm-player/internal/metrics"
	"github.com/Resonate-Protocol/pcm-player/internal/ui"
	"github.com/Resonate-Protocol/pcm-player/internal/version"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "Producer address host:port (skip mDNS)")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Player friendly name")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Audio output backend: oto, malgo or portaudio")
	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Completion poll interval for the oto backend")
	flag.IntVar(&cfg.Volume, "volume", cfg.Volume, "Initial volume (0-100)")
	flag.BoolVar(&cfg.Enabled, "enabled", cfg.Enabled, "Start with playback already enabled")
	flag.IntVar(&cfg.MaxQueueDepth, "max-queue", cfg.MaxQueueDepth, "Maximum queued chunks, oldest dropped first (0 = unbounded)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address (empty = off)")
	noTUI := flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs := flag.Bool("stream-logs", false, "Alias for -no-tui")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", version.Product, version.Version, version.Manufacturer)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	useTUI := !(*noTUI || *streamLogs)

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	var out io.Writer = f
	if !useTUI {
		// Streaming logs mode: console plus file
		out = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}, f)
	}
	log.Logger = zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()

	log.Info().
		Str("name", cfg.Name).
		Str("backend", cfg.Backend).
		Bool("enabled", cfg.Enabled).
		Int("max_queue", cfg.MaxQueueDepth).
		Msg("Starting PCM player")

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(controls, cfg.Volume)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Error().Err(err).Msg("TUI error")
			}
		}()
	}

	appConfig := app.Config{
		ServerAddr:    cfg.ServerAddr,
		Name:          cfg.Name,
		Backend:       cfg.Backend,
		PollInterval:  cfg.PollInterval,
		Volume:        cfg.Volume,
		Enabled:       cfg.Enabled,
		MaxQueueDepth: cfg.MaxQueueDepth,
	}
	if tuiProg != nil {
		appConfig.OnStatus = func(msg ui.StatusMsg) { tuiProg.Send(msg) }
	}

	player, err := app.New(appConfig)
	if err != nil {
		quit(tuiProg)
		log.Fatal().Err(err).Msg("Failed to create player")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		metrics.NewExporter(cfg.MetricsAddr, player.Engine()).Start(ctx)
	}

	if err := player.Start(); err != nil {
		quit(tuiProg)
		player.Stop()
		log.Fatal().Err(err).Msg("Failed to start player")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quitChan <-chan struct{}
	if controls != nil {
		go handleControls(player, controls)
		quitChan = controls.Quit
	} else {
		if !cfg.Enabled {
			log.Info().Msg("Playback is not enabled. Press Enter to play")
		}
		go readPlayRequests(player, os.Stdin)
	}

	select {
	case <-quitChan:
		log.Info().Msg("Received quit signal from TUI")
	case <-sigChan:
		log.Info().Msg("Shutdown signal received")
	case <-player.Done():
		log.Info().Msg("Producer connection ended")
	}

	if err := player.Stop(); err != nil {
		log.Warn().Err(err).Msg("Error stopping player")
	}
	quit(tuiProg)

	log.Info().Msg("Player stopped")
}

// handleControls forwards TUI key presses to the player
func handleControls(player *app.Player, controls *ui.Controls) {
	for {
		select {
		case <-controls.Play:
			if err := player.Play(); err != nil {
				log.Error().Err(err).Msg("Play request failed")
			}
		case vol := <-controls.Changes:
			log.Info().Int("volume", vol.Volume).Bool("muted", vol.Muted).Msg("Volume change")
			player.SetVolume(vol.Volume, vol.Muted)
		case <-player.Done():
			return
		}
	}
}

// readPlayRequests treats each line on stdin as a play request
func readPlayRequests(player *app.Player, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := player.Play(); err != nil {
			log.Error().Err(err).Msg("Play request failed")
		}
	}
}

func quit(prog *tea.Program) {
	if prog != nil {
		prog.Quit()
	}
}
