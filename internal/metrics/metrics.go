package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shelf"

var (
	once sync.Once

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Count of booking state transitions by action and resulting status.",
		},
		[]string{"action", "status"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of booking operations rejected because of asset conflicts.",
		},
		[]string{"action"},
	)

	partialCheckins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_checkins_total",
			Help:      "Count of partial check-ins recorded.",
		},
	)

	bookingsOverdue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_overdue_total",
			Help:      "Count of bookings moved to overdue by the sweeper.",
		},
	)

	billingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Count of billing events by type and result.",
		},
		[]string{"type", "result"},
	)

	workingHoursCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "working_hours_cache_total",
			Help:      "Working hours cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingTransitions,
			bookingConflicts,
			partialCheckins,
			bookingsOverdue,
			billingEvents,
			workingHoursCache,
		)
	})
}

func IncTransition(action, status string) {
	bookingTransitions.WithLabelValues(action, status).Inc()
}

func IncConflict(action string) {
	bookingConflicts.WithLabelValues(action).Inc()
}

func IncPartialCheckin() {
	partialCheckins.Inc()
}

func AddOverdue(n int) {
	bookingsOverdue.Add(float64(n))
}

func IncBillingEvent(eventType, result string) {
	billingEvents.WithLabelValues(eventType, result).Inc()
}

// IncCache records a cache lookup; result is "hit", "miss" or "error".
func IncCache(result string) {
	workingHoursCache.WithLabelValues(result).Inc()
}
