package sampling

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "katedas"

// Metrics of both protocol roles. A nil *Metrics records nothing.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	attempts       prometheus.Counter
	failedCells    prometheus.Counter
	peerResults    *prometheus.CounterVec
	verifyDuration prometheus.Histogram
	cacheRequests  *prometheus.CounterVec
	servedCells    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "block_outcomes_total",
			Help:      "Blocks reaching a verification state",
		}, []string{"state"}),
		attempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "attempts_total",
			Help:      "Sampling attempts across all blocks",
		}),
		failedCells: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "failed_cells_total",
			Help:      "Cells whose proof did not verify",
		}),
		peerResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "peer_results_total",
			Help:      "Per peer request outcomes",
		}, []string{"result"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sampling",
			Name:      "verify_duration_seconds",
			Help:      "Time from the first attempt to a final or timed out state",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "proof_cache_requests_total",
			Help:      "Proof cache lookups by result",
		}, []string{"result"}),
		servedCells: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "served_cells_total",
			Help:      "Cell proofs served to peers",
		}),
	}
}

func (m *Metrics) observeOutcome(s State, since time.Time) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(s.String()).Inc()
	if !since.IsZero() {
		m.verifyDuration.Observe(time.Since(since).Seconds())
	}
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) observeFailedCells(n int) {
	if m == nil {
		return
	}
	m.failedCells.Add(float64(n))
}

func (m *Metrics) observePeer(s PeerState) {
	if m == nil {
		return
	}
	var result string
	switch s {
	case PeerVerified:
		result = "verified"
	case PeerInvalidCells:
		result = "invalid_cells"
	case PeerTimedOut:
		result = "timed_out"
	default:
		result = "error"
	}
	m.peerResults.WithLabelValues(result).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	m.cacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) observeServed(n int) {
	if m == nil {
		return
	}
	m.servedCells.Add(float64(n))
}
