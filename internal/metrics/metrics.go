package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "bookings_created_total",
			Help:      "Bookings accepted by the reservation engine.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "booking_conflicts_total",
			Help:      "Reservation attempts rejected on slot overlap.",
		},
	)

	paymentsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "payments_settled_total",
			Help:      "Terminal payment-intent transitions by outcome.",
		},
		[]string{"status"},
	)

	webhookRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "webhook_rejections_total",
			Help:      "Provider callbacks rejected before settlement.",
		},
		[]string{"reason"},
	)

	eventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korty",
			Name:      "events_delivered_total",
			Help:      "Outbox events handed to a sink.",
		},
		[]string{"sink"},
	)

	streamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "korty",
			Name:      "stream_connections",
			Help:      "Currently attached realtime subscribers.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingConflicts,
			paymentsSettled,
			webhookRejections,
			eventsDelivered,
			streamConnections,
		)
	})
}

func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

func IncBookingCreated() { bookingsCreated.Inc() }

func IncBookingConflict() { bookingConflicts.Inc() }

func IncPaymentSettled(status string) {
	paymentsSettled.WithLabelValues(status).Inc()
}

func IncWebhookRejection(reason string) {
	webhookRejections.WithLabelValues(reason).Inc()
}

func IncEventDelivered(sink string) {
	eventsDelivered.WithLabelValues(sink).Inc()
}

func StreamConnected()    { streamConnections.Inc() }
func StreamDisconnected() { streamConnections.Dec() }
