// Package store declares the persistence collaborators used by the ticketing
// services. Implementations live in the sub-packages.
package store

import (
	"context"
	"time"

	"github.com/shaunfitzgarald/events-app-sub001/models"
)

const (
	CollectionTickets = "tickets"
	CollectionHolds   = "ticket_holds"
	CollectionEvents  = "events"
	CollectionUsers   = "users"
)

// TicketFilter is an equality filter over ticket fields. Empty fields are
// ignored; Limit <= 0 means no limit.
type TicketFilter struct {
	EventID      string
	UserID       string
	TicketNumber string
	Limit        int
}

type TicketRepository interface {
	// CreateTicket persists t and sets its ID.
	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, t *models.Ticket) error
	FindTickets(ctx context.Context, filter TicketFilter) ([]*models.Ticket, error)
}

type EventRepository interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	SaveTicketSettings(ctx context.Context, id string, settings models.TicketSettings) error
}

type HoldRepository interface {
	// CreateHold persists h and sets its ID. It fails with
	// status.ErrHoldConflict when an unexpired hold on the same number exists.
	CreateHold(ctx context.Context, h *models.TicketNumberHold) error
	DeleteHold(ctx context.Context, id string) error
	HoldExists(ctx context.Context, ticketNumber string, now time.Time) (bool, error)
	DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error)
}

type Store interface {
	Tickets() TicketRepository
	Events() EventRepository
	Holds() HoldRepository

	// WithTx runs fn against a transactional view of the store. Any error
	// returned by fn rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// UserDirectory resolves user profiles for display.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
