// Package metrics defines the Prometheus collectors the service exports.
package metrics

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/parking-reservation/internal/booking"
)

// Metrics groups booking and HTTP collectors.  A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	BookingsCreated  *prometheus.CounterVec
	BookingsReleased prometheus.Counter
	BookingsRejected *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		BookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_created_total",
			Help: "Bookings created, by booking type.",
		}, []string{"type"}),
		BookingsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_released_total",
			Help: "Bookings released.",
		}),
		BookingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_rejected_total",
			Help: "Booking operations refused, by error kind.",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.BookingsCreated, m.BookingsReleased, m.BookingsRejected, m.HTTPRequests, m.HTTPDuration)
	return m
}

// RegisterDB exports connection pool statistics for db.
func RegisterDB(reg prometheus.Registerer, db *sql.DB, name string) {
	reg.MustRegister(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) BookingCreated(bookingType string) {
	if m == nil {
		return
	}
	m.BookingsCreated.WithLabelValues(bookingType).Inc()
}

func (m *Metrics) BookingReleased() {
	if m == nil {
		return
	}
	m.BookingsReleased.Inc()
}

// BookingRejected counts a failed create or release under its error kind.
func (m *Metrics) BookingRejected(err error) {
	if m == nil || err == nil {
		return
	}
	m.BookingsRejected.WithLabelValues(Kind(err)).Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Kind maps a booking error to a low-cardinality label.
func Kind(err error) string {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return "validation"
	case errors.Is(err, booking.ErrLotNotFound):
		return "lot_not_found"
	case errors.Is(err, booking.ErrNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrActiveBookingExists):
		return "active_booking_exists"
	case errors.Is(err, booking.ErrSpotUnavailable):
		return "spot_unavailable"
	case errors.Is(err, booking.ErrTimeConflict):
		return "time_conflict"
	case errors.Is(err, booking.ErrNoSpotsAvailable):
		return "no_spots_available"
	case errors.Is(err, booking.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, booking.ErrAlreadyCompleted):
		return "already_completed"
	}
	return "internal"
}
