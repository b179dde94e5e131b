package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LockResourceLedger    = "fusion_logs"
	LockResourceInventory = "user_cards"
)

// FusionMetrics captures fusion commit health signals scraped from /metrics.
type FusionMetrics struct {
	commits    *prometheus.CounterVec
	replays    prometheus.Counter
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rateLimit  *prometheus.CounterVec
	dbLockWait *prometheus.HistogramVec
}

// NewFusionMetrics registers the fusion collectors on registerer.
func NewFusionMetrics(registerer prometheus.Registerer, cfg Config) *FusionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cardforge"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &FusionMetrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cardforge_fusion_commits_total",
			Help:        "Committed fusions by outcome and policy version.",
			ConstLabels: constLabels,
		}, []string{"outcome", "policy_version"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cardforge_fusion_replays_total",
			Help:        "Fusion requests answered from the ledger.",
			ConstLabels: constLabels,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cardforge_fusion_errors_total",
			Help:        "Rejected or failed fusion requests by error kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "cardforge_fusion_commit_duration_seconds",
			Help:        "Latency of the fusion commit transaction.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"outcome", "policy_version"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cardforge_rate_limit_total",
			Help:        "Rate limiter decisions by action class.",
			ConstLabels: constLabels,
		}, []string{"action", "decision"}),
		dbLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "cardforge_db_lock_wait_seconds",
			Help:        "Time spent acquiring row locks inside the commit transaction.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			ConstLabels: constLabels,
		}, []string{"resource"}),
	}

	registerer.MustRegister(m.commits, m.replays, m.errors, m.duration, m.rateLimit, m.dbLockWait)
	return m
}

// ObserveCommit records one committed fusion.
func (m *FusionMetrics) ObserveCommit(outcome, policyVersion string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome, policyVersion).Inc()
	m.duration.WithLabelValues(outcome, policyVersion).Observe(duration.Seconds())
}

func (m *FusionMetrics) IncReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

func (m *FusionMetrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *FusionMetrics) IncRateLimit(action, decision string) {
	if m == nil {
		return
	}
	m.rateLimit.WithLabelValues(action, decision).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *FusionMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}
