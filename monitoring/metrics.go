package monitoring

import (
	"context"
	"log/slog"
	"time"

	"partyflow/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyflow_tickets_issued_total",
			Help: "Tickets persisted after a confirmed payment",
		},
		[]string{"event_id"},
	)

	ticketIssueDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyflow_ticket_issue_denied_total",
			Help: "Ticket issues refused by the inventory guard",
		},
		[]string{"reason"},
	)

	capacityConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partyflow_capacity_conflicts_total",
			Help: "Payments captured by the gateway for sold out events",
		},
	)

	checkoutRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyflow_checkout_requests_total",
			Help: "Checkout creations by outcome",
		},
		[]string{"status"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyflow_notifications_total",
			Help: "Outbound notifications by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	reminderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partyflow_reminder_runs_total",
			Help: "Daily reminder scans by outcome",
		},
		[]string{"status"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partyflow_gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation", "status"},
	)

	remainingCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partyflow_event_remaining_capacity",
			Help: "Unsold tickets per event",
		},
		[]string{"event_id"},
	)
)

func TrackTicketIssued(eventID string) {
	ticketsIssued.WithLabelValues(eventID).Inc()
}

func TrackIssueDenied(reason string) {
	ticketIssueDenied.WithLabelValues(reason).Inc()
}

func TrackCapacityConflict() {
	capacityConflicts.Inc()
}

func TrackCheckout(status string) {
	checkoutRequests.WithLabelValues(status).Inc()
}

func TrackNotification(kind string, err error) {
	notificationsSent.WithLabelValues(kind, outcome(err)).Inc()
}

func TrackReminderRun(status string) {
	reminderRuns.WithLabelValues(status).Inc()
}

func TrackGatewayCall(operation string, started time.Time, err error) {
	gatewayDuration.WithLabelValues(operation, outcome(err)).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// InventorySource lists events with their remaining capacity.
type InventorySource interface {
	ListEventListings(ctx context.Context) ([]models.EventListing, error)
}

// Monitor refreshes the remaining capacity gauge on an interval.
type Monitor struct {
	source   InventorySource
	interval time.Duration
}

func NewMonitor(source InventorySource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{source: source, interval: interval}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(ctx)
		}
	}
}

func (m *Monitor) Collect(ctx context.Context) {
	listings, err := m.source.ListEventListings(ctx)
	if err != nil {
		slog.Error("Failed to collect inventory metrics", "error", err)
		return
	}

	remainingCapacity.Reset()
	for _, l := range listings {
		remainingCapacity.WithLabelValues(l.ID).Set(float64(l.Remaining))
	}
}
