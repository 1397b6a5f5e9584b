package services

import (
	"context"

	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

// QueryService serves read-only ticket lookups.
type QueryService struct {
	tickets store.TicketRepository
	users   store.UserDirectory
}

func NewQueryService(tickets store.TicketRepository, users store.UserDirectory) *QueryService {
	return &QueryService{tickets: tickets, users: users}
}

func (s *QueryService) ByEvent(ctx context.Context, eventID string) ([]*models.Ticket, error) {
	return s.tickets.FindTickets(ctx, store.TicketFilter{EventID: eventID})
}

// ByUser lists the user's tickets, newest first. limit <= 0 returns all.
func (s *QueryService) ByUser(ctx context.Context, userID string, limit int) ([]*models.Ticket, error) {
	return s.tickets.FindTickets(ctx, store.TicketFilter{UserID: userID, Limit: limit})
}

// ByNumber returns nil, nil when no ticket has the number.
func (s *QueryService) ByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	found, err := s.tickets.FindTickets(ctx, store.TicketFilter{TicketNumber: ticketNumber, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (s *QueryService) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.tickets.GetTicket(ctx, ticketID)
}

// QRPayload returns the encoded text shown as the ticket's QR code.
func (s *QueryService) QRPayload(ctx context.Context, ticketID string) (string, error) {
	t, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return "", err
	}
	return t.QRPayload().Encode()
}

// HolderName resolves the ticket owner's display name. It returns "" when no
// user directory is configured.
func (s *QueryService) HolderName(ctx context.Context, t *models.Ticket) (string, error) {
	if s.users == nil {
		return "", nil
	}
	return s.users.DisplayName(ctx, t.UserID)
}
