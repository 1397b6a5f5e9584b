package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaunfitzgarald/events-app-sub001/internal/clock"
	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
	"github.com/shaunfitzgarald/events-app-sub001/monitoring"
)

const (
	DefaultHoldDuration = 15 * time.Minute
	DefaultSweepBatch   = 200
)

// HoldService places and releases short-lived claims on ticket numbers.
type HoldService struct {
	holds    store.HoldRepository
	clock    clock.Clock
	duration time.Duration
	batch    int
	monitor  *monitoring.Monitor
}

type HoldOption func(*HoldService)

func WithHoldDuration(d time.Duration) HoldOption {
	return func(s *HoldService) {
		if d > 0 {
			s.duration = d
		}
	}
}

func WithHoldClock(c clock.Clock) HoldOption {
	return func(s *HoldService) { s.clock = c }
}

func WithSweepBatch(n int) HoldOption {
	return func(s *HoldService) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithHoldMonitor(m *monitoring.Monitor) HoldOption {
	return func(s *HoldService) { s.monitor = m }
}

func NewHoldService(holds store.HoldRepository, opts ...HoldOption) *HoldService {
	s := &HoldService{
		holds:    holds,
		clock:    clock.NewSystem(),
		duration: DefaultHoldDuration,
		batch:    DefaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceHold reserves ticketNumber for userID. A non-positive duration uses
// the service default.
func (s *HoldService) PlaceHold(ctx context.Context, ticketNumber, userID string, duration time.Duration) (*models.TicketNumberHold, error) {
	if duration <= 0 {
		duration = s.duration
	}

	now := s.clock.Now()
	hold := &models.TicketNumberHold{
		TicketNumber: ticketNumber,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(duration),
	}
	if err := s.holds.CreateHold(ctx, hold); err != nil {
		return nil, err
	}
	return hold, nil
}

func (s *HoldService) IsHeld(ctx context.Context, ticketNumber string) (bool, error) {
	return s.holds.HoldExists(ctx, ticketNumber, s.clock.Now())
}

// ReleaseHold deletes the hold. A missing hold is not an error and any other
// failure is only logged: the number stays blocked until the hold expires.
func (s *HoldService) ReleaseHold(ctx context.Context, holdID string) {
	if holdID == "" {
		return
	}

	err := s.holds.DeleteHold(ctx, holdID)
	switch {
	case err == nil, errors.Is(err, status.ErrNotFound):
	default:
		slog.Error("release ticket hold", "holdID", holdID, "error", err)
	}
}

// SweepExpired deletes expired holds batch by batch and returns how many
// were removed.
func (s *HoldService) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.holds.DeleteExpiredHolds(ctx, s.clock.Now(), s.batch)
		total += n
		if err != nil {
			s.monitor.TrackSwept(total)
			return total, err
		}
		if n < s.batch {
			s.monitor.TrackSwept(total)
			return total, nil
		}
	}
}

// RunSweeper sweeps expired holds every interval until ctx is done.
func (s *HoldService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				slog.Error("sweep expired holds", "error", err, "deleted", n)
				continue
			}
			if n > 0 {
				slog.Info("swept expired holds", "deleted", n)
			}
		}
	}
}
