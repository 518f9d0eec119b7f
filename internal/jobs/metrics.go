package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	flagged  *prometheus.CounterVec
	dates    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddFlagged counts ledger rows that ended in a non-OK status.
func (m *Metrics) AddFlagged(family, status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.flagged.WithLabelValues(family, status).Add(float64(count))
}

// FlaggedCounter exposes the flagged-row counter of one label pair.
func (m *Metrics) FlaggedCounter(family, status string) prometheus.Counter {
	return m.flagged.WithLabelValues(family, status)
}

// AddDates counts rebuilt dates per family and outcome.
func (m *Metrics) AddDates(family string, failed bool, count int) {
	if m == nil || count <= 0 {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.dates.WithLabelValues(family, outcome).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiftledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	flagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_ledger_flagged_rows_total",
		Help: "Ledger rows rebuilt with ALERT or MISSING_DATA status.",
	}, []string{"family", "status"})
	dates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_ledger_rebuilt_dates_total",
		Help: "Ledger dates processed by rebuild jobs grouped by outcome.",
	}, []string{"family", "outcome"})
	registerer.MustRegister(runs, failures, duration, flagged, dates)
	return &Metrics{runs: runs, failures: failures, duration: duration, flagged: flagged, dates: dates}
}
