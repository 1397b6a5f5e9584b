package models

import (
	"github.com/shopspring/decimal"
)

// Event is the subset of an event record the ticketing core reads and
// mutates. The event itself is owned elsewhere.
type Event struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Settings TicketSettings `json:"ticket_settings"`
}

type TicketSettings struct {
	Enabled              bool            `json:"tickets_enabled"`
	Available            int             `json:"tickets_available"`
	Sold                 int             `json:"tickets_sold"`
	Price                decimal.Decimal `json:"ticket_price"`
	Currency             string          `json:"ticket_currency"`
	VerificationRequired bool            `json:"ticket_verification_required"`
}

// TicketSettingsUpdate is the caller-supplied ticket configuration. Sold is
// not settable; it only moves with issuance and cancellation.
type TicketSettingsUpdate struct {
	Enabled              bool            `json:"enabled"`
	Available            int             `json:"available"`
	Price                decimal.Decimal `json:"price"`
	Currency             string          `json:"currency"`
	VerificationRequired bool            `json:"verification_required"`
}

// Issue moves one unit from available to sold.
func (s *TicketSettings) Issue() {
	s.Available = max(s.Available-1, 0)
	s.Sold++
}

// Return moves one unit from sold back to available, flooring sold at zero
// to tolerate counters that have drifted.
func (s *TicketSettings) Return() {
	s.Available++
	s.Sold = max(s.Sold-1, 0)
}
