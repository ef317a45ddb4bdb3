package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-attempt-service/internal/domain"
)

// Metrics implements app.Recorder and carries the HTTP request histogram.
type Metrics struct {
	attemptsStarted     prometheus.Counter
	attemptTransitions  *prometheus.CounterVec
	submissionsGraded   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "attempts_started_total",
			Help:      "Attempts started.",
		}),
		attemptTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "attempt_transitions_total",
			Help:      "Attempt status transitions by target status.",
		}, []string{"status"}),
		submissionsGraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz",
			Name:      "submissions_graded_total",
			Help:      "Submissions graded, by auto or manual mode.",
		}, []string{"mode"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quiz",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.attemptsStarted, m.attemptTransitions, m.submissionsGraded, m.httpRequestDuration)
	return m
}

func (m *Metrics) AttemptStarted() {
	m.attemptsStarted.Inc()
}

func (m *Metrics) AttemptTransitioned(status domain.AttemptStatus) {
	m.attemptTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) SubmissionGraded(mode string) {
	m.submissionsGraded.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
