package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_reservation_requests_total",
		Help: "Reservation attempts by outcome",
	}, []string{"outcome"})

	ReservationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "raffle_reservation_duration_seconds",
		Help:    "Time spent allocating numbers inside the reservation transaction",
		Buckets: prometheus.DefBuckets,
	})

	NumbersReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raffle_numbers_reserved_total",
		Help: "Numbers moved available -> reserved",
	})

	NumbersReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raffle_numbers_released_total",
		Help: "Numbers returned to the pool by the expiration sweeper",
	})

	NumbersSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raffle_numbers_sold_total",
		Help: "Numbers finalized as sold by webhook confirmation",
	})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_sweep_runs_total",
		Help: "Expiration sweeps by outcome",
	}, []string{"outcome"})

	PaymentSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_payment_sessions_total",
		Help: "Payment session creations by provider and outcome",
	}, []string{"provider", "outcome"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_webhook_deliveries_total",
		Help: "Webhook deliveries by provider and outcome",
	}, []string{"provider", "outcome"})
)

func TrackReservation(outcome string) {
	ReservationRequests.WithLabelValues(outcome).Inc()
}

func TrackSweep(outcome string) {
	SweepRuns.WithLabelValues(outcome).Inc()
}

func TrackPaymentSession(provider, outcome string) {
	PaymentSessions.WithLabelValues(provider, outcome).Inc()
}

func TrackWebhook(provider, outcome string) {
	WebhookDeliveries.WithLabelValues(provider, outcome).Inc()
}
