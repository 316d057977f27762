// Package metrics exposes Prometheus counters for admission decisions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "schedule_engine"

var (
	once sync.Once

	bookingDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decision_total",
			Help:      "Count of booking admission decisions by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	shiftConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_conflict_total",
			Help:      "Count of shift conflicts found by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	shiftDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_assignment_total",
			Help:      "Count of shift assignment decisions by outcome.",
		},
		[]string{"outcome"},
	)

	anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_anomaly_total",
			Help:      "Count of attendance anomalies by kind.",
		},
		[]string{"kind"},
	)

	lockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for admission locks.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"scope", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingDecision, bookingCancelled, shiftConflicts, shiftDecision, anomalies, lockWait)
	})
}

func IncBookingDecision(outcome string) {
	bookingDecision.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncShiftConflict(kind, severity string) {
	shiftConflicts.WithLabelValues(kind, severity).Inc()
}

func IncShiftDecision(outcome string) {
	shiftDecision.WithLabelValues(outcome).Inc()
}

func IncAnomaly(kind string) {
	anomalies.WithLabelValues(kind).Inc()
}

// ObserveLockWait records how long acquiring a lock took.
func ObserveLockWait(scope string, started time.Time, err error) {
	result := "acquired"
	if err != nil {
		result = "timeout"
	}
	lockWait.WithLabelValues(scope, result).Observe(time.Since(started).Seconds())
}
