// ABOUTME: Entry point for the PCM test producer
// ABOUTME: Parses CLI flags, starts the server, and forwards console commands to players
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcm-player/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	port       = flag.Int("port", 8927, "WebSocket server port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-pcm-serve)")
	logFile    = flag.String("log-file", "pcm-serve.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile  = flag.String("audio", "", "24kHz MP3/FLAC file or HTTP MP3 URL to stream. If not specified, plays a test tone")
	toneHz     = flag.Float64("tone", 440, "Test tone frequency in Hz")
	jsonChunks = flag.Bool("json", false, "Send audio/chunk JSON text frames with base64 data instead of binary frames")
	minChunk   = flag.Int("min-chunk-ms", server.DefaultMinChunkMs, "Smallest chunk duration")
	maxChunk   = flag.Int("max-chunk-ms", server.DefaultMaxChunkMs, "Largest chunk duration")
	oddEvery   = flag.Int("odd-every", 0, "Append a stray byte to every Nth chunk (0 = never)")
	seed       = flag.Int64("seed", 0, "Chunk size seed (0 = time based)")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	log.Logger = zerolog.New(io.MultiWriter(console, f)).Level(level).With().Timestamp().Logger()

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-pcm-serve", hostname)
	}

	log.Info().Str("name", serverName).Int("port", *port).Str("log_file", *logFile).Msg("Starting PCM producer")
	log.Info().Msg("Commands: volume <0-100>, mute, unmute, play. Press Ctrl-C to stop")

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		AudioFile:  *audioFile,
		ToneHz:     *toneHz,
		JSONChunks: *jsonChunks,
		MinChunkMs: *minChunk,
		MaxChunkMs: *maxChunk,
		OddEvery:   *oddEvery,
		Seed:       *seed,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Stringer("signal", sig).Msg("Shutting down gracefully...")
		srv.Stop()
	}()

	go readCommands(srv, os.Stdin)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server stopped")
}

// readCommands forwards console lines to every connected player
func readCommands(srv *server.Server, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "clients" {
			for _, c := range srv.Clients() {
				log.Info().Str("name", c.Name).Str("state", c.State).Int("volume", c.Volume).Bool("muted", c.Muted).Msg("Client")
			}
			continue
		}

		cmd, err := server.ParseCommand(line)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring command")
			continue
		}
		srv.Broadcast(cmd)
	}
}
