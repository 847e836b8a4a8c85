// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/advreboot/internal/analyzer"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/state"
)

// pollInterval is how often the Collector samples the watched
// LabeledStates; it matches the reachability watcher's own tick.
const pollInterval = 500 * time.Millisecond

// Dimension names a LabeledState for the Collector's sampling loop.
type Dimension struct {
	Name  string
	State *state.LabeledState
}

// Collector periodically samples a set of LabeledStates into a
// Registry and exposes a method to record one Analyzer result.
type Collector struct {
	registry   *Registry
	logger     *logging.Logger
	dimensions []Dimension
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewCollector constructs a Collector over dimensions, reporting into
// registry.
func NewCollector(registry *Registry, logger *logging.Logger, dimensions []Dimension) *Collector {
	return &Collector{
		registry:   registry,
		logger:     logger,
		dimensions: dimensions,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Run samples every dimension into the registry every pollInterval
// until ctx is cancelled or Stop is called.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		for _, d := range c.dimensions {
			c.registry.SetReachability(d.Name, d.State.Get(), d.State.IsFlooding())
		}
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// RecordSentCount sets the sender_packets_sent_total counter to sent,
// called once after the Sender finishes a run (the harness reports one
// total per run, not a live rate).
func (c *Collector) RecordSentCount(sent int) {
	c.registry.PacketsSent.Add(float64(sent))
}

// RecordAnalysis folds one analyzer.Result into the receive/loss
// counters and disruption gauges.
func (c *Collector) RecordAnalysis(result *analyzer.Result) {
	if result == nil {
		return
	}
	c.registry.PacketsReceived.Add(float64(result.SentCounter - result.TotalDisruptPackets))
	c.registry.PacketsLost.Add(float64(result.TotalDisruptPackets))
	c.registry.MaxDisruptSeconds.Set(result.MaxDisruptTime)
	c.registry.TotalDisruptSeconds.Set(result.TotalDisruptTime)
}

// Server exposes a Registry's metrics over HTTP at /metrics, matching
// spec.md's "optional net/http listener for long-running observability"
// addition — only started when metrics_listen_addr is configured.
type Server struct {
	httpServer *http.Server
}

// NewServer constructs a metrics Server bound to addr.
func NewServer(addr string, registry *Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Serve blocks until ctx is cancelled or the server fails to start.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
