package models

import "time"

// TicketNumberHold is a provisional claim on a ticket number while a
// purchase is in flight.
type TicketNumberHold struct {
	ID           string    `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *TicketNumberHold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
