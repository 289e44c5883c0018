package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reservation outcomes.
const (
	OutcomeReserved  = "reserved"
	OutcomeConflict  = "conflict"
	OutcomeBusy      = "busy"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// BookingMetrics counts booking lifecycle transitions.
type BookingMetrics struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_reservations_total",
		Help:      "Reservation attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking status transitions by target status.",
	}, []string{"status"})
	reg.MustRegister(reservations, transitions)
	return &BookingMetrics{
		reservations: reservations,
		transitions:  transitions,
	}
}

// IncReservation records the outcome of one reservation attempt.
func (b *BookingMetrics) IncReservation(outcome string) {
	if b == nil || b.reservations == nil {
		return
	}
	b.reservations.WithLabelValues(jobLabel(outcome)).Inc()
}

// IncTransition records a booking entering status.
func (b *BookingMetrics) IncTransition(status string) {
	b.AddTransitions(status, 1)
}

// AddTransitions records n bookings entering status.
func (b *BookingMetrics) AddTransitions(status string, n int) {
	if b == nil || b.transitions == nil || n <= 0 {
		return
	}
	b.transitions.WithLabelValues(jobLabel(status)).Add(float64(n))
}
