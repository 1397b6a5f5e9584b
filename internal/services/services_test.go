package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shaunfitzgarald/events-app-sub001/internal/clock"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store/memstore"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type notification struct {
	kind   string
	ticket *models.Ticket
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) TicketChanged(ctx context.Context, kind string, t *models.Ticket) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: kind, ticket: t})
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		kinds = append(kinds, s.kind)
	}
	return kinds
}

type fixture struct {
	store    *memstore.Store
	clock    *clock.Fixed
	holds    *HoldService
	oracle   *UniquenessOracle
	tickets  *TicketService
	queries  *QueryService
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...OracleOption) *fixture {
	t.Helper()

	st := memstore.New()
	clk := clock.NewFixed(testNow)
	holds := NewHoldService(st.Holds(), WithHoldClock(clk))
	oracle := NewUniquenessOracle(st.Tickets(), holds, append([]OracleOption{WithOracleClock(clk)}, opts...)...)
	notifier := &recordingNotifier{}

	return &fixture{
		store:    st,
		clock:    clk,
		holds:    holds,
		oracle:   oracle,
		tickets:  NewTicketService(st, oracle, holds, WithTicketClock(clk), WithNotifier(notifier)),
		queries:  NewQueryService(st.Tickets(), st),
		notifier: notifier,
	}
}

func (f *fixture) addEvent(id string, available, sold int) {
	f.store.PutEvent(models.Event{
		ID:   id,
		Name: "Launch Party",
		Settings: models.TicketSettings{
			Enabled:   true,
			Available: available,
			Sold:      sold,
			Price:     decimal.RequireFromString("25.00"),
			Currency:  "USD",
		},
	})
}

func (f *fixture) settings(id string) models.TicketSettings {
	event, _ := f.store.Event(id)
	return event.Settings
}

// sequence returns a generator yielding numbers in order, repeating the last.
func sequence(numbers ...string) (func(time.Time) (string, error), *int) {
	var (
		mu    sync.Mutex
		calls int
	)
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[min(calls, len(numbers)-1)]
		calls++
		return n, nil
	}, &calls
}
