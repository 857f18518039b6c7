package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	syncDuration   *prom.HistogramVec
	syncOutcomes   *prom.CounterVec
	pullOutcomes   *prom.CounterVec
	backupBranches prom.Counter
	pending        prom.Gauge
	cooldownSkips  prom.Counter
	watcherErrors  prom.Counter
	pollFailures   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.syncDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ghsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync queue jobs by operation",
			Buckets:   prom.DefBuckets,
		}, []string{"op"})
		pr.syncOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "sync_outcomes_total",
			Help:      "Sync queue job outcomes by operation",
		}, []string{"op", "outcome"})
		pr.pullOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "pull_outcomes_total",
			Help:      "Pull results by integration outcome",
		}, []string{"outcome"})
		pr.backupBranches = prom.NewCounter(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "backup_branches_total",
			Help:      "Backup branches created by diverged pulls",
		})
		pr.pending = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ghsync",
			Name:      "pending_changes",
			Help:      "Paths waiting for the next local sync",
		})
		pr.cooldownSkips = prom.NewCounter(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "cooldown_skips_total",
			Help:      "Local syncs refused by the cooldown",
		})
		pr.watcherErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "watcher_errors_total",
			Help:      "Errors reported by the filesystem watcher",
		})
		pr.pollFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ghsync",
			Name:      "poll_failures_total",
			Help:      "Remote poll failures by stage",
		}, []string{"stage"})
		reg.MustRegister(pr.syncDuration, pr.syncOutcomes, pr.pullOutcomes, pr.backupBranches, pr.pending, pr.cooldownSkips, pr.watcherErrors, pr.pollFailures)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveSyncDuration(op string, d time.Duration) {
	if p == nil || p.syncDuration == nil {
		return
	}
	p.syncDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncOutcome(op string, outcome OutcomeLabel) {
	if p == nil || p.syncOutcomes == nil {
		return
	}
	p.syncOutcomes.WithLabelValues(op, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPullOutcome(outcome string) {
	if p == nil || p.pullOutcomes == nil {
		return
	}
	p.pullOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncBackupBranch() {
	if p == nil || p.backupBranches == nil {
		return
	}
	p.backupBranches.Inc()
}

func (p *PrometheusRecorder) SetPendingChanges(n int) {
	if p == nil || p.pending == nil {
		return
	}
	p.pending.Set(float64(n))
}

func (p *PrometheusRecorder) IncCooldownSkip() {
	if p == nil || p.cooldownSkips == nil {
		return
	}
	p.cooldownSkips.Inc()
}

func (p *PrometheusRecorder) IncWatcherError() {
	if p == nil || p.watcherErrors == nil {
		return
	}
	p.watcherErrors.Inc()
}

func (p *PrometheusRecorder) IncPollFailure(stage string) {
	if p == nil || p.pollFailures == nil {
		return
	}
	p.pollFailures.WithLabelValues(stage).Inc()
}
