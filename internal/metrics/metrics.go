// ABOUTME: Prometheus metrics for the playback engine
// ABOUTME: Exposes queue depth, buffer counters and lifecycle state over HTTP
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcm-player/pkg/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "pcm_player"

const readHeaderTimeout = 10 * time.Second

// Source is what the collector reads on every scrape
type Source interface {
	Stats() playback.Stats
	State() playback.State
}

var states = []playback.State{
	playback.StateUninitialized,
	playback.StateIdle,
	playback.StateDraining,
	playback.StateDisposed,
}

// Collector reports a snapshot of engine statistics per scrape
type Collector struct {
	source Source

	buffers    *prometheus.Desc
	truncated  *prometheus.Desc
	queueDepth *prometheus.Desc
	queuedSecs *prometheus.Desc
	state      *prometheus.Desc
}

// NewCollector creates a collector over source
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		buffers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "buffers_total"),
			"Buffers handled by the engine, by outcome.",
			[]string{"outcome"}, nil,
		),
		truncated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "truncated_chunks_total"),
			"Odd-length chunks that lost a trailing byte.",
			nil, nil,
		),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "depth"),
			"Buffers waiting to be played.",
			nil, nil,
		),
		queuedSecs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "seconds"),
			"Audio duration waiting to be played.",
			nil, nil,
		),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "state"),
			"Engine lifecycle state (1 for the current state).",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buffers
	ch <- c.truncated
	ch <- c.queueDepth
	ch <- c.queuedSecs
	ch <- c.state
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	current := c.source.State()

	counters := []struct {
		outcome string
		value   int64
	}{
		{"received", stats.Received},
		{"played", stats.Played},
		{"failed", stats.Failed},
		{"dropped", stats.Dropped},
		{"rejected", stats.Rejected},
	}
	for _, ctr := range counters {
		ch <- prometheus.MustNewConstMetric(c.buffers, prometheus.CounterValue, float64(ctr.value), ctr.outcome)
	}

	ch <- prometheus.MustNewConstMetric(c.truncated, prometheus.CounterValue, float64(stats.Truncated))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(stats.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.queuedSecs, prometheus.GaugeValue, stats.QueuedDuration.Seconds())

	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, s.String())
	}
}

// Exporter serves the metrics endpoint
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

// NewExporter builds a registry with the engine collector and Go runtime metrics
func NewExporter(addr string, source Source) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Exporter{
		addr:     addr,
		registry: registry,
	}
}

// Handler returns the /metrics handler
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Start serves metrics in the background until ctx is cancelled
func (e *Exporter) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	e.mu.Lock()
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	server := e.server
	e.mu.Unlock()

	go func() {
		log.Info().Str("addr", e.addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		e.Shutdown(context.Background())
	}()
}

// Shutdown stops the metrics server
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	server := e.server
	e.server = nil
	e.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
