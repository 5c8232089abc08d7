// Package metrics holds the Prometheus collectors shared by the watcher and
// the gateway. Collectors register on the default registry; the gateway
// serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_blocks_processed_total",
		Help: "Blocks fetched and scanned for treasury deposits.",
	})

	BlockFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_block_fetch_errors_total",
		Help: "Blocks skipped because full detail could not be fetched.",
	})

	DepositsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_deposits_detected_total",
		Help: "Transactions that passed the treasury deposit filter.",
	})

	CreditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_credits_applied_total",
		Help: "Deposits successfully credited to a user balance.",
	})

	CreditsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_credits_dropped_total",
		Help: "Deposits detected but not credited, by reason.",
	}, []string{"reason"})

	Debits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_debits_total",
		Help: "Debit attempts by outcome.",
	}, []string{"outcome"})

	LastBlockSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_last_block_seen",
		Help: "Highest block number received from the chain feed.",
	})
)
