package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shaunfitzgarald/events-app-sub001/internal/clock"
	"github.com/shaunfitzgarald/events-app-sub001/internal/notify"
	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
	"github.com/shaunfitzgarald/events-app-sub001/monitoring"
	"github.com/shaunfitzgarald/events-app-sub001/utils"
)

const DefaultCurrency = "USD"

// Notifier receives ticket changes after they are committed.
type Notifier interface {
	TicketChanged(ctx context.Context, kind string, t *models.Ticket) error
}

type TicketService struct {
	store    store.Store
	oracle   *UniquenessOracle
	holds    *HoldService
	clock    clock.Clock
	notifier Notifier
	monitor  *monitoring.Monitor
	currency string
	newCode  func() (string, error)
}

type TicketOption func(*TicketService)

func WithTicketClock(c clock.Clock) TicketOption {
	return func(s *TicketService) { s.clock = c }
}

func WithNotifier(n Notifier) TicketOption {
	return func(s *TicketService) { s.notifier = n }
}

func WithTicketMonitor(m *monitoring.Monitor) TicketOption {
	return func(s *TicketService) { s.monitor = m }
}

func WithDefaultCurrency(currency string) TicketOption {
	return func(s *TicketService) {
		if currency != "" {
			s.currency = strings.ToUpper(currency)
		}
	}
}

func NewTicketService(st store.Store, oracle *UniquenessOracle, holds *HoldService, opts ...TicketOption) *TicketService {
	s := &TicketService{
		store:    st,
		oracle:   oracle,
		holds:    holds,
		clock:    clock.NewSystem(),
		currency: DefaultCurrency,
		newCode:  utils.GenerateVerificationCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PurchaseInput struct {
	EventID             string
	UserID              string
	UseVerificationCode bool
	// Price falls back to the event's ticket price when not set.
	Price    decimal.NullDecimal
	Currency string
	Card     models.PaymentCard
}

func checkSellable(settings models.TicketSettings) error {
	if !settings.Enabled {
		return status.ErrTicketsDisabled
	}
	if settings.Available <= 0 {
		return status.ErrSoldOut
	}
	return nil
}

// Purchase issues one ticket for the event. The event counters and the
// ticket are written in one transaction, and the number's hold is released
// on every return path.
func (s *TicketService) Purchase(ctx context.Context, in PurchaseInput) (ticket *models.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.Purchase",
		attribute.String("event.id", in.EventID),
		attribute.String("user.id", in.UserID),
	)
	defer func() {
		s.monitor.TrackOperation("purchase", err)
		endSpan(span, err)
	}()

	event, err := s.store.Events().GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if err := checkSellable(event.Settings); err != nil {
		return nil, err
	}

	hold, err := s.oracle.Reserve(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, hold)

	now := s.clock.Now()
	ticket = &models.Ticket{
		TicketNumber: hold.TicketNumber,
		EventID:      in.EventID,
		UserID:       in.UserID,
		Price:        event.Settings.Price,
		Currency:     s.currencyFor(in.Currency, event.Settings.Currency),
		Payment:      models.NewPaymentSummary(in.Card, now),
		Status:       models.TicketStatusActive,
		PurchasedAt:  now,
	}
	if in.Price.Valid {
		ticket.Price = in.Price.Decimal
	}
	if in.UseVerificationCode || event.Settings.VerificationRequired {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate verification code: %w", err)
		}
		ticket.VerificationCode = code
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.Events().GetEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		// another purchase may have taken the last ticket since the first read
		if err := checkSellable(current.Settings); err != nil {
			return err
		}
		if err := tx.Tickets().CreateTicket(ctx, ticket); err != nil {
			return err
		}
		current.Settings.Issue()
		return tx.Events().SaveTicketSettings(ctx, in.EventID, current.Settings)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ticket issued", "ticketID", ticket.ID, "eventID", ticket.EventID, "userID", ticket.UserID)
	s.monitor.TrackIssued(ticket.EventID)
	s.notify(ctx, notify.TicketPurchased, ticket)
	return ticket, nil
}

func (s *TicketService) currencyFor(requested, event string) string {
	switch {
	case requested != "":
		return strings.ToUpper(requested)
	case event != "":
		return strings.ToUpper(event)
	default:
		return s.currency
	}
}

func (s *TicketService) release(ctx context.Context, hold *models.TicketNumberHold) {
	s.holds.ReleaseHold(context.WithoutCancel(ctx), hold.ID)
	s.monitor.TrackHold(s.clock.Now().Sub(hold.CreatedAt))
}

func checkCanCheckIn(t *models.Ticket, code string) error {
	if t.CheckedIn {
		return status.ErrAlreadyCheckedIn
	}
	if t.Status != models.TicketStatusActive {
		return fmt.Errorf("%w: ticket is %s", status.ErrNotActive, t.Status)
	}
	if t.HasVerificationCode() && subtle.ConstantTimeCompare([]byte(t.VerificationCode), []byte(code)) != 1 {
		return status.ErrInvalidCode
	}
	return nil
}

// CheckIn marks the ticket as attended. The guard and the write run in one
// transaction, so only one of two concurrent check-ins succeeds.
func (s *TicketService) CheckIn(ctx context.Context, ticketID, code string) (ticket *models.Ticket, err error) {
	ctx, span := startSpan(ctx, "TicketService.CheckIn", attribute.String("ticket.id", ticketID))
	defer func() {
		s.monitor.TrackOperation("check_in", err)
		endSpan(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		t, err := tx.Tickets().GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := checkCanCheckIn(t, code); err != nil {
			return err
		}

		t.MarkCheckedIn(s.clock.Now())
		if err := tx.Tickets().UpdateTicket(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.TicketCheckedIn, ticket)
	return ticket, nil
}

// CheckInByQR checks in the ticket described by a scanned QR payload. When
// eventID is set the ticket must belong to that event.
func (s *TicketService) CheckInByQR(ctx context.Context, payload, eventID string) (*models.Ticket, error) {
	qr, err := models.ParseQRPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidQRPayload, err)
	}
	if eventID != "" && qr.EventID != eventID {
		return nil, status.ErrEventMismatch
	}

	found, err := s.store.Tickets().FindTickets(ctx, store.TicketFilter{TicketNumber: qr.TicketNumber, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, status.ErrTicketNotFound
	}
	if found[0].EventID != qr.EventID {
		return nil, status.ErrEventMismatch
	}

	return s.CheckIn(ctx, found[0].ID, qr.Code())
}

// Cancel voids an active ticket and returns its unit to the event inventory.
// A checked-in ticket can be cancelled; it stays checked in.
func (s *TicketService) Cancel(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.closeTicket(ctx, ticketID, models.TicketStatusCancelled, notify.TicketCancelled)
}

// Refund is Cancel with a refunded end state.
func (s *TicketService) Refund(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.closeTicket(ctx, ticketID, models.TicketStatusRefunded, notify.TicketRefunded)
}

func checkCanClose(t *models.Ticket) error {
	switch t.Status {
	case models.TicketStatusCancelled:
		return status.ErrAlreadyCancelled
	case models.TicketStatusRefunded:
		return status.ErrAlreadyRefunded
	}
	return nil
}

func (s *TicketService) closeTicket(ctx context.Context, ticketID string, to models.TicketStatus, kind string) (ticket *models.Ticket, err error) {
	operation := string(to)
	ctx, span := startSpan(ctx, "TicketService.Close",
		attribute.String("ticket.id", ticketID),
		attribute.String("ticket.status", operation),
	)
	defer func() {
		s.monitor.TrackOperation(operation, err)
		endSpan(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		t, err := tx.Tickets().GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := checkCanClose(t); err != nil {
			return err
		}

		t.Status = to
		if err := tx.Tickets().UpdateTicket(ctx, t); err != nil {
			return err
		}
		ticket = t

		event, err := tx.Events().GetEvent(ctx, t.EventID)
		if errors.Is(err, status.ErrNotFound) {
			slog.Warn("ticket closed for missing event, inventory not returned", "ticketID", t.ID, "eventID", t.EventID)
			return nil
		}
		if err != nil {
			return err
		}
		event.Settings.Return()
		return tx.Events().SaveTicketSettings(ctx, event.ID, event.Settings)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, kind, ticket)
	return ticket, nil
}

// UpdateEventTicketSettings overwrites the event's ticket configuration.
// Sold is left as is.
func (s *TicketService) UpdateEventTicketSettings(ctx context.Context, eventID string, update models.TicketSettingsUpdate) (event *models.Event, err error) {
	ctx, span := startSpan(ctx, "TicketService.UpdateEventTicketSettings", attribute.String("event.id", eventID))
	defer func() {
		s.monitor.TrackOperation("update_settings", err)
		endSpan(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		e, err := tx.Events().GetEvent(ctx, eventID)
		if err != nil {
			return err
		}

		e.Settings.Enabled = update.Enabled
		e.Settings.Available = update.Available
		e.Settings.Price = update.Price
		e.Settings.Currency = s.currencyFor(update.Currency, "")
		e.Settings.VerificationRequired = update.VerificationRequired

		if err := tx.Events().SaveTicketSettings(ctx, eventID, e.Settings); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// notify publishes in the background; delivery never affects the caller.
func (s *TicketService) notify(ctx context.Context, kind string, t *models.Ticket) {
	if s.notifier == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	snapshot := t.Clone()
	go func() {
		if err := s.notifier.TicketChanged(ctx, kind, snapshot); err != nil {
			slog.Warn("ticket notification failed", "kind", kind, "ticketID", snapshot.ID, "error", err)
		}
	}()
}
