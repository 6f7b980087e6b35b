package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ns = "tutorcenter"

var (
	SessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_created_total", Help: "Class sessions created, by source",
	}, []string{"source"})
	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "session_transitions_total", Help: "Session status changes, by new status",
	}, []string{"status"})
	LateArrivals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "late_arrivals_total", Help: "Late tutor arrivals recorded",
	})
	ConflictsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "schedule_conflicts_total", Help: "Session writes rejected or skipped for overlap",
	})
	ComplianceItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "compliance_items_total", Help: "Post-class checklist items completed, by item",
	}, []string{"item"})
	PaymentsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "payments_processed_total", Help: "Fee payments accepted, by method",
	}, []string{"method"})
	PayrollGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "payroll_generated_total", Help: "Payroll records generated",
	})
	ExportsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "exports_total", Help: "Excel reports built, by report",
	}, []string{"report"})
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "logins_total", Help: "Login attempts, by result",
	}, []string{"result"})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "notifications_total", Help: "Notifications sent, by channel and result",
	}, []string{"channel", "result"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "HTTP requests, by route and status code",
	}, []string{"route", "code"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(SessionsCreated, SessionTransitions, LateArrivals, ConflictsRejected,
		ComplianceItems, PaymentsProcessed, PayrollGenerated, ExportsGenerated, Logins, NotificationsSent, HTTPRequests, HTTPDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveHTTP(route string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
