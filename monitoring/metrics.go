package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_operations_total",
			Help: "Total ticket operations by outcome",
		},
		[]string{"operation", "status"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued per event",
		},
		[]string{"event_id"},
	)

	allocationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_number_allocation_attempts",
			Help:    "Candidates tried before a free ticket number was found",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	holdsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_holds_swept_total",
			Help: "Total expired holds removed by the sweeper",
		},
	)

	holdDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_hold_duration_seconds",
			Help:    "Time between placing and releasing a ticket number hold",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	liveHolds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_holds_live",
			Help: "Current number of live ticket number holds",
		},
	)
)

// HoldCounter reports how many holds are currently live.
type HoldCounter interface {
	CountHolds(ctx context.Context) (int64, error)
}

// Monitor records ticketing metrics. A nil *Monitor is valid and records
// nothing.
type Monitor struct {
	holds HoldCounter
}

func NewMonitor(holds HoldCounter) *Monitor {
	return &Monitor{holds: holds}
}

// Run samples the live hold gauge every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil || m.holds == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectHoldMetrics(ctx)
		}
	}
}

func (m *Monitor) collectHoldMetrics(ctx context.Context) {
	count, err := m.holds.CountHolds(ctx)
	if err != nil {
		slog.Warn("collect hold metrics", "error", err)
		return
	}
	liveHolds.Set(float64(count))
}

func (m *Monitor) TrackOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	ticketOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackIssued(eventID string) {
	if m == nil {
		return
	}
	ticketsIssued.WithLabelValues(eventID).Inc()
}

func (m *Monitor) TrackAllocation(attempts int) {
	if m == nil {
		return
	}
	allocationAttempts.Observe(float64(attempts))
}

func (m *Monitor) TrackSwept(n int) {
	if m == nil || n == 0 {
		return
	}
	holdsSwept.Add(float64(n))
}

func (m *Monitor) TrackHold(d time.Duration) {
	if m == nil {
		return
	}
	holdDuration.Observe(d.Seconds())
}
