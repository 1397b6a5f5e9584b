package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaunfitzgarald/events-app-sub001/internal/clock"
	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
	"github.com/shaunfitzgarald/events-app-sub001/monitoring"
	"github.com/shaunfitzgarald/events-app-sub001/utils"
)

const DefaultAllocationAttempts = 10

// UniquenessOracle decides whether a ticket number is free across issued
// tickets and live holds.
type UniquenessOracle struct {
	tickets  store.TicketRepository
	holds    *HoldService
	clock    clock.Clock
	attempts int
	generate func(now time.Time) (string, error)
	monitor  *monitoring.Monitor
}

type OracleOption func(*UniquenessOracle)

func WithMaxAttempts(n int) OracleOption {
	return func(o *UniquenessOracle) {
		if n > 0 {
			o.attempts = n
		}
	}
}

func WithNumberGenerator(fn func(now time.Time) (string, error)) OracleOption {
	return func(o *UniquenessOracle) { o.generate = fn }
}

func WithOracleClock(c clock.Clock) OracleOption {
	return func(o *UniquenessOracle) { o.clock = c }
}

func WithOracleMonitor(m *monitoring.Monitor) OracleOption {
	return func(o *UniquenessOracle) { o.monitor = m }
}

func NewUniquenessOracle(tickets store.TicketRepository, holds *HoldService, opts ...OracleOption) *UniquenessOracle {
	o := &UniquenessOracle{
		tickets:  tickets,
		holds:    holds,
		clock:    clock.NewSystem(),
		attempts: DefaultAllocationAttempts,
		generate: utils.GenerateTicketNumber,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsTaken reports whether a ticket or a live hold uses number. Storage errors
// count as taken.
func (o *UniquenessOracle) IsTaken(ctx context.Context, number string) bool {
	issued, err := o.issued(ctx, number)
	if err != nil {
		slog.Warn("ticket number lookup failed, treating as taken", "ticketNumber", number, "error", err)
		return true
	}
	if issued {
		return true
	}

	held, err := o.holds.IsHeld(ctx, number)
	if err != nil {
		slog.Warn("hold lookup failed, treating as taken", "ticketNumber", number, "error", err)
		return true
	}
	return held
}

func (o *UniquenessOracle) issued(ctx context.Context, number string) (bool, error) {
	found, err := o.tickets.FindTickets(ctx, store.TicketFilter{TicketNumber: number, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (o *UniquenessOracle) candidate() (string, error) {
	number, err := o.generate(o.clock.Now())
	if err != nil {
		return "", fmt.Errorf("generate ticket number: %w", err)
	}
	return number, nil
}

// GenerateUniqueTicketNumber returns a number that was free when checked.
// It does not reserve it; use Reserve when the number will be persisted.
func (o *UniquenessOracle) GenerateUniqueTicketNumber(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= o.attempts; attempt++ {
		number, err := o.candidate()
		if err != nil {
			return "", err
		}
		if !o.IsTaken(ctx, number) {
			o.monitor.TrackAllocation(attempt)
			return number, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", status.ErrAllocationExhausted, o.attempts)
}

// Reserve finds a free number and holds it for userID. Losing the hold race
// to another allocator uses up an attempt like any other taken number.
func (o *UniquenessOracle) Reserve(ctx context.Context, userID string) (*models.TicketNumberHold, error) {
	for attempt := 1; attempt <= o.attempts; attempt++ {
		number, err := o.candidate()
		if err != nil {
			return nil, err
		}
		if o.IsTaken(ctx, number) {
			continue
		}

		hold, err := o.holds.PlaceHold(ctx, number, userID, 0)
		if errors.Is(err, status.ErrHoldConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// a purchase may have committed this number between the check and
		// the hold
		issued, err := o.issued(ctx, number)
		if err != nil || issued {
			o.holds.ReleaseHold(context.WithoutCancel(ctx), hold.ID)
			continue
		}

		o.monitor.TrackAllocation(attempt)
		return hold, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", status.ErrAllocationExhausted, o.attempts)
}
