package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the queue and session layers. All are
// registered on the default registry and served by the daemon's /metrics
// endpoint.
var (
	EnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_enqueued_total",
		Help: "Operations accepted into the durable queue.",
	})
	EnqueueRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayq_enqueue_rejected_total",
		Help: "Operations rejected from queueing, by reason.",
	}, []string{"reason"})
	ReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayq_replays_total",
		Help: "Replay attempts, by outcome.",
	}, []string{"outcome"})
	DeadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_dead_letters_total",
		Help: "Operations permanently dead-lettered after exhausting retries.",
	})
	FragmentsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_fragments_ingested_total",
		Help: "Stream fragments admitted into session checkpoints.",
	})
	FragmentsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_fragments_duplicate_total",
		Help: "Fragment ingestions ignored as duplicate offsets.",
	})
	DrainPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_drain_passes_total",
		Help: "Drain passes started by the reconnect coordinator.",
	})
	DrainCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayq_drain_coalesced_total",
		Help: "Drain triggers coalesced into an already running pass.",
	})
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayq_queue_depth",
		Help: "Checkpointed operations currently queued, per actor.",
	}, []string{"actor"})
	StoreBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayq_store_bytes",
		Help: "On-disk size of the checkpoint store.",
	})
)
