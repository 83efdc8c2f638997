package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsReserved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "bookings_reserved_total",
			Help:      "Successful slot reservations.",
		},
	)

	bookingsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "bookings_rejected_total",
			Help:      "Rejected reservation attempts by reason.",
		},
		[]string{"reason"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "reminders_sent_total",
			Help:      "Delivered reminders by role and lead tag.",
		},
		[]string{"role", "lead"},
	)

	reminderFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "reminder_failures_total",
			Help:      "Failed reminder delivery attempts.",
		},
	)

	sweepRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "sweep_recovered_total",
			Help:      "Reminders delivered by the periodic sweep rather than a timer.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lessonbot",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one reminder sweep pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lessonbot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsReserved,
			bookingsRejected,
			remindersSent,
			reminderFailures,
			sweepRecovered,
			sweepDuration,
			httpRequests,
		)
	})
}

func IncBookingReserved() {
	bookingsReserved.Inc()
}

func IncBookingRejected(reason string) {
	bookingsRejected.WithLabelValues(reason).Inc()
}

func IncReminderSent(role, lead string) {
	remindersSent.WithLabelValues(role, lead).Inc()
}

func IncReminderFailure() {
	reminderFailures.Inc()
}

func IncSweepRecovered() {
	sweepRecovered.Inc()
}

func ObserveSweep(seconds float64) {
	sweepDuration.Observe(seconds)
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
