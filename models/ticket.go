package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "active"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusRefunded  TicketStatus = "refunded"
)

// IsTerminal reports whether no further lifecycle transition is allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCancelled || s == TicketStatusRefunded
}

type Attendance string

const (
	AttendanceNotCheckedIn Attendance = "not_checked_in"
	AttendanceCheckedIn    Attendance = "checked_in"
)

// TicketState is the lifecycle status paired with attendance. The two axes
// move independently, so a cancelled ticket may still be checked in.
type TicketState struct {
	Lifecycle  TicketStatus `json:"lifecycle"`
	Attendance Attendance   `json:"attendance"`
}

func (s TicketState) String() string {
	return fmt.Sprintf("%s/%s", s.Lifecycle, s.Attendance)
}

type Ticket struct {
	ID               string          `json:"id"`
	TicketNumber     string          `json:"ticket_number"`
	VerificationCode string          `json:"verification_code,omitempty"`
	EventID          string          `json:"event_id"`
	UserID           string          `json:"user_id"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Payment          PaymentSummary  `json:"payment"`
	Status           TicketStatus    `json:"status"`
	CheckedIn        bool            `json:"checked_in"`
	CheckedInAt      *time.Time      `json:"checked_in_at"`
	PurchasedAt      time.Time       `json:"purchased_at"`
}

func (t *Ticket) State() TicketState {
	attendance := AttendanceNotCheckedIn
	if t.CheckedIn {
		attendance = AttendanceCheckedIn
	}
	return TicketState{Lifecycle: t.Status, Attendance: attendance}
}

// HasVerificationCode reports whether check-in requires a code.
func (t *Ticket) HasVerificationCode() bool {
	return t.VerificationCode != ""
}

// MarkCheckedIn sets both attendance fields together.
func (t *Ticket) MarkCheckedIn(at time.Time) {
	t.CheckedIn = true
	t.CheckedInAt = &at
}

// QRPayload returns the scannable payload for this ticket.
func (t *Ticket) QRPayload() QRPayload {
	payload := QRPayload{
		TicketNumber: t.TicketNumber,
		EventID:      t.EventID,
	}
	if t.HasVerificationCode() {
		code := t.VerificationCode
		payload.VerificationCode = &code
	}
	return payload
}

// Clone returns a copy that shares no pointers with t.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.CheckedInAt != nil {
		at := *t.CheckedInAt
		c.CheckedInAt = &at
	}
	return &c
}
