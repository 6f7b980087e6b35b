package jobs

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "tutorcenter"
	metricsSubsystem = "job"
)

var jobLabels = []string{"job"}

func jobCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: name, Help: help,
	}, jobLabels)
}

var (
	jobRuns   = jobCounter("runs_total", "Background job runs")
	jobErrors = jobCounter("errors_total", "Background job failures, panics included")
	jobItems  = jobCounter("items_total", "Records handled by background jobs")

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name:    "duration_seconds",
		Help:    "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, jobLabels)

	// Alert on time() - last_success for the monthly payroll and reminders.
	jobLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	}, jobLabels)
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobItems, jobDuration, jobLastSuccess)
}
