// Package metrics exposes the controller's Prometheus counters: packets
// captured per direction, ring drops, and fan-out drops, matching the
// teacher service's use of client_golang for operational counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wowcap",
		Name:      "packets_captured_total",
		Help:      "Packets read out of a target's capture ring, by direction.",
	}, []string{"direction"})

	RingDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wowcap",
		Name:      "ring_drops_total",
		Help:      "Ring read cycles the controller abandoned, by reason.",
	}, []string{"reason"})

	FanOutDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wowcap",
		Name:      "fanout_drops_total",
		Help:      "Packets dropped because a subscriber's channel was full.",
	})

	AttachedTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wowcap",
		Name:      "attached_targets",
		Help:      "Number of target processes currently attached and streaming.",
	})

	RingPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wowcap",
		Name:      "ring_poll_duration_seconds",
		Help:      "Time spent draining one target's ring per poll.",
		Buckets:   prometheus.DefBuckets,
	})
)
