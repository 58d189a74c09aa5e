package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cronResultOK     = "ok"
	cronResultFailed = "failed"
)

// CronJobMetrics covers the maintenance jobs run by the cron worker. The
// last-success gauge is what alerting watches for a stalled ledger reconcile.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolcrib_cron_job_runs_total",
			Help: "Cron job executions by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolcrib_cron_job_duration_seconds",
			Help:    "Cron job wall time.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toolcrib_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolcrib_cron_cycles_skipped_total",
			Help: "Cycles skipped because another instance held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one job execution. A nil err counts as success.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, cronResultFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, cronResultOK).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (m *CronJobMetrics) IncSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
