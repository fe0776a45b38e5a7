package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking_service",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking_service",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	bookingRescheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking_service",
			Name:      "booking_rescheduled_total",
			Help:      "Count of bookings rescheduled.",
		},
	)

	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking_service",
			Name:      "idempotent_replay_total",
			Help:      "Count of create requests answered from a consumed idempotency token.",
		},
	)

	availabilityDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booking_service",
			Name:      "availability_duration_seconds",
			Help:      "Time spent computing a day's availability.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingCancelled, bookingRescheduled, idempotentReplays, availabilityDuration)
	})
}

func IncBookingCreated(outcome string) {
	bookingCreated.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncBookingRescheduled() {
	bookingRescheduled.Inc()
}

func IncIdempotentReplay() {
	idempotentReplays.Inc()
}

func ObserveAvailabilityDuration(seconds float64) {
	availabilityDuration.Observe(seconds)
}
