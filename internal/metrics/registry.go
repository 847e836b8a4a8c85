// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes a Prometheus registry for the harness's live
// observability during a measurement window: current label of each of
// the four reachability dimensions, their flooding flags, and the
// sent/received/lost packet counters the Sender and Analyzer produce.
// It mirrors grimm-is-flywall/internal/metrics's Registry/Collector
// split, sized down to this harness's four state machines instead of a
// firewall's policy/interface surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// stateValue encodes a LabeledState's current label as a gauge value,
// since Prometheus gauges carry numbers, not strings.
const (
	stateValueDown    = 0
	stateValuePartial = 1
	stateValueUp      = 2
)

// Registry owns every metric the harness exports and the
// *prometheus.Registry they're registered against.
type Registry struct {
	reg *prometheus.Registry

	ReachabilityState *prometheus.GaugeVec
	Flooding          *prometheus.GaugeVec

	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	PacketsLost     prometheus.Counter

	MaxDisruptSeconds   prometheus.Gauge
	TotalDisruptSeconds prometheus.Gauge
}

// NewRegistry constructs a Registry with every metric registered
// against a fresh prometheus.Registry (not the global default, so
// repeated test runs in the same process don't collide on registration).
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.ReachabilityState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "advreboot",
		Name:      "reachability_state",
		Help:      "Current reachability label per dimension: 0=down, 1=partial, 2=up.",
	}, []string{"dimension"})

	r.Flooding = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "advreboot",
		Name:      "reachability_flooding",
		Help:      "1 if the dimension's last probe round observed more replies than packets sent.",
	}, []string{"dimension"})

	r.PacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "advreboot",
		Name:      "sender_packets_sent_total",
		Help:      "Tagged sequence-stream packets emitted by the Sender.",
	})
	r.PacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "advreboot",
		Name:      "analyzer_packets_received_total",
		Help:      "Unique tagged sequence numbers observed on the receive side.",
	})
	r.PacketsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "advreboot",
		Name:      "analyzer_packets_lost_total",
		Help:      "Tagged sequence numbers the Analyzer attributed to a disruption gap.",
	})

	r.MaxDisruptSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "advreboot",
		Name:      "analyzer_max_disrupt_seconds",
		Help:      "Duration of the longest disruption gap in the most recent analysis.",
	})
	r.TotalDisruptSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "advreboot",
		Name:      "analyzer_total_disrupt_seconds",
		Help:      "Sum of disruption gap durations in the most recent analysis.",
	})

	r.reg.MustRegister(
		r.ReachabilityState,
		r.Flooding,
		r.PacketsSent,
		r.PacketsReceived,
		r.PacketsLost,
		r.MaxDisruptSeconds,
		r.TotalDisruptSeconds,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// SetReachability records dimension's current label and flooding flag.
func (r *Registry) SetReachability(dimension, label string, flooding bool) {
	v := stateValueDown
	switch label {
	case "up":
		v = stateValueUp
	case "partial":
		v = stateValuePartial
	}
	r.ReachabilityState.WithLabelValues(dimension).Set(float64(v))
	flood := 0.0
	if flooding {
		flood = 1.0
	}
	r.Flooding.WithLabelValues(dimension).Set(flood)
}
