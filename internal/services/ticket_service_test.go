package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunfitzgarald/events-app-sub001/internal/notify"
	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
	"github.com/shaunfitzgarald/events-app-sub001/utils"
)

func purchaseInput(eventID string) PurchaseInput {
	return PurchaseInput{
		EventID: eventID,
		UserID:  "u1",
		Card:    models.PaymentCard{Number: "4242 4242 4242 4242", Brand: "visa"},
	}
}

func (f *fixture) purchase(t *testing.T, in PurchaseInput) *models.Ticket {
	t.Helper()
	ticket, err := f.tickets.Purchase(context.Background(), in)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) allTickets(t *testing.T) []*models.Ticket {
	t.Helper()
	tickets, err := f.store.FindTickets(context.Background(), store.TicketFilter{})
	require.NoError(t, err)
	return tickets
}

func TestTicketService_Purchase_LastTicketThenSoldOut(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)

	ticket := f.purchase(t, purchaseInput("E"))
	assert.NotEmpty(t, ticket.ID)
	assert.Regexp(t, ticketNumberPattern, ticket.TicketNumber)
	assert.Equal(t, models.TicketStatusActive, ticket.Status)
	assert.False(t, ticket.CheckedIn)
	assert.Nil(t, ticket.CheckedInAt)
	assert.Equal(t, testNow, ticket.PurchasedAt)
	assert.Equal(t, 0, f.settings("E").Available)
	assert.Equal(t, 1, f.settings("E").Sold)

	_, err := f.tickets.Purchase(context.Background(), purchaseInput("E"))
	assert.ErrorIs(t, err, status.ErrSoldOut)
	assert.Len(t, f.allTickets(t), 1)
}

func TestTicketService_Purchase_ReleasesHold(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 5, 0)

	f.purchase(t, purchaseInput("E"))
	assert.Empty(t, f.store.HeldNumbers())
}

func TestTicketService_Purchase_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		eventID string
		wantErr error
	}{
		{
			name:    "missing event",
			setup:   func(f *fixture) {},
			eventID: "nope",
			wantErr: status.ErrNotFound,
		},
		{
			name: "tickets disabled",
			setup: func(f *fixture) {
				f.store.PutEvent(models.Event{ID: "E", Settings: models.TicketSettings{Enabled: false, Available: 10}})
			},
			eventID: "E",
			wantErr: status.ErrTicketsDisabled,
		},
		{
			name:    "sold out",
			setup:   func(f *fixture) { f.addEvent("E", 0, 50) },
			eventID: "E",
			wantErr: status.ErrSoldOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.tickets.Purchase(context.Background(), purchaseInput(tt.eventID))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.store.Calls("CreateHold"))
			assert.Zero(t, f.store.Calls("CreateTicket"))
			assert.Empty(t, f.allTickets(t))
		})
	}
}

func TestTicketService_Purchase_VerificationCode(t *testing.T) {
	tests := []struct {
		name     string
		useCode  bool
		required bool
		wantCode bool
	}{
		{name: "not requested", wantCode: false},
		{name: "requested by purchaser", useCode: true, wantCode: true},
		{name: "required by event", required: true, wantCode: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.PutEvent(models.Event{ID: "E", Settings: models.TicketSettings{
				Enabled: true, Available: 1, VerificationRequired: tt.required,
			}})

			in := purchaseInput("E")
			in.UseVerificationCode = tt.useCode
			ticket := f.purchase(t, in)

			if !tt.wantCode {
				assert.Empty(t, ticket.VerificationCode)
				return
			}
			require.Len(t, ticket.VerificationCode, utils.VerificationCodeLength)
			for _, r := range ticket.VerificationCode {
				assert.Contains(t, utils.VerificationCodeCharset, string(r))
			}
		})
	}
}

func TestTicketService_Purchase_PaymentTruncated(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)

	ticket := f.purchase(t, purchaseInput("E"))
	assert.Equal(t, "4242", ticket.Payment.Last4)
	assert.Equal(t, "visa", ticket.Payment.CardBrand)

	stored, err := f.store.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "4242 4242")
	assert.NotContains(t, string(data), "4242424242424242")
}

func TestTicketService_Purchase_PriceAndCurrency(t *testing.T) {
	f := newFixture(t)
	f.store.PutEvent(models.Event{ID: "E", Settings: models.TicketSettings{
		Enabled: true, Available: 3, Price: decimal.RequireFromString("40.00"),
	}})

	fromEvent := f.purchase(t, purchaseInput("E"))
	assert.True(t, decimal.RequireFromString("40").Equal(fromEvent.Price))
	assert.Equal(t, "USD", fromEvent.Currency)

	in := purchaseInput("E")
	in.Price = decimal.NewNullDecimal(decimal.RequireFromString("12.50"))
	in.Currency = "eur"
	override := f.purchase(t, in)
	assert.True(t, decimal.RequireFromString("12.5").Equal(override.Price))
	assert.Equal(t, "EUR", override.Currency)
}

func TestTicketService_Purchase_FailureAfterHold(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{name: "ticket insert fails", op: "CreateTicket"},
		{name: "counter update fails", op: "SaveTicketSettings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addEvent("E", 10, 2)
			f.store.FailOn(tt.op, errors.New("write failed"))

			_, err := f.tickets.Purchase(context.Background(), purchaseInput("E"))
			assert.ErrorIs(t, err, status.ErrStorageFailure)

			assert.Equal(t, 1, f.store.Calls("CreateHold"))
			assert.Empty(t, f.store.HeldNumbers(), "hold released on failure")
			assert.Empty(t, f.allTickets(t))
			assert.Equal(t, 10, f.settings("E").Available)
			assert.Equal(t, 2, f.settings("E").Sold)
		})
	}
}

func TestTicketService_Purchase_HoldReleaseFailureDoesNotSurface(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	f.store.FailOn("DeleteHold", errors.New("timeout"))

	ticket, err := f.tickets.Purchase(context.Background(), purchaseInput("E"))
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.TicketNumber}, f.store.HeldNumbers())
}

func TestTicketService_Purchase_AllocationExhausted(t *testing.T) {
	gen, _ := sequence("1111000000000001")
	f := newFixture(t, WithNumberGenerator(gen))
	f.addEvent("E", 5, 0)
	issueTicket(t, f, "1111000000000001")

	_, err := f.tickets.Purchase(context.Background(), purchaseInput("E"))
	assert.ErrorIs(t, err, status.ErrAllocationExhausted)
	assert.Zero(t, f.store.Calls("CreateHold"))
	assert.Equal(t, 5, f.settings("E").Available)
	assert.Len(t, f.allTickets(t), 1)
}

func TestTicketService_Purchase_ConcurrentDoesNotOversell(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 5, 0)

	const buyers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sold    []*models.Ticket
		soldOut int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := f.tickets.Purchase(context.Background(), purchaseInput("E"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold = append(sold, ticket)
			case errors.Is(err, status.ErrSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sold, 5)
	assert.Equal(t, buyers-5, soldOut)
	assert.Equal(t, 0, f.settings("E").Available)
	assert.Equal(t, 5, f.settings("E").Sold)

	numbers := map[string]bool{}
	for _, ticket := range sold {
		assert.False(t, numbers[ticket.TicketNumber])
		numbers[ticket.TicketNumber] = true
	}
	assert.Empty(t, f.store.HeldNumbers())
}

func TestTicketService_CounterConservation(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 10, 3)

	ticket := f.purchase(t, purchaseInput("E"))
	assert.Equal(t, 9, f.settings("E").Available)
	assert.Equal(t, 4, f.settings("E").Sold)

	_, err := f.tickets.Cancel(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.settings("E").Available)
	assert.Equal(t, 3, f.settings("E").Sold)
}

func TestTicketService_CheckIn_Twice(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	f.tickets.newCode = func() (string, error) { return "AB3456", nil }

	in := purchaseInput("E")
	in.UseVerificationCode = true
	ticket := f.purchase(t, in)
	require.Equal(t, "AB3456", ticket.VerificationCode)

	f.clock.Advance(2 * time.Hour)
	checked, err := f.tickets.CheckIn(context.Background(), ticket.ID, "AB3456")
	require.NoError(t, err)
	assert.True(t, checked.CheckedIn)
	require.NotNil(t, checked.CheckedInAt)
	assert.Equal(t, testNow.Add(2*time.Hour), *checked.CheckedInAt)
	assert.Equal(t, "active/checked_in", checked.State().String())

	_, err = f.tickets.CheckIn(context.Background(), ticket.ID, "AB3456")
	assert.ErrorIs(t, err, status.ErrAlreadyCheckedIn)
}

func TestTicketService_CheckIn_VerificationGate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "empty code", code: "", wantErr: status.ErrInvalidCode},
		{name: "wrong code", code: "ZZ9999", wantErr: status.ErrInvalidCode},
		{name: "lower case", code: "ab3456", wantErr: status.ErrInvalidCode},
		{name: "prefix only", code: "AB345", wantErr: status.ErrInvalidCode},
		{name: "padded", code: " AB3456", wantErr: status.ErrInvalidCode},
		{name: "exact match", code: "AB3456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addEvent("E", 1, 0)
			f.tickets.newCode = func() (string, error) { return "AB3456", nil }

			in := purchaseInput("E")
			in.UseVerificationCode = true
			ticket := f.purchase(t, in)

			_, err := f.tickets.CheckIn(context.Background(), ticket.ID, tt.code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, _ := f.store.GetTicket(context.Background(), ticket.ID)
				assert.False(t, stored.CheckedIn)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTicketService_CheckIn_NoCodeAcceptsAnything(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ticket := f.purchase(t, purchaseInput("E"))

	_, err := f.tickets.CheckIn(context.Background(), ticket.ID, "whatever")
	assert.NoError(t, err)
}

func TestTicketService_CheckIn_Errors(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 2, 0)
	ctx := context.Background()

	_, err := f.tickets.CheckIn(ctx, "missing", "")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)

	ticket := f.purchase(t, purchaseInput("E"))
	_, err = f.tickets.Cancel(ctx, ticket.ID)
	require.NoError(t, err)

	_, err = f.tickets.CheckIn(ctx, ticket.ID, "")
	assert.ErrorIs(t, err, status.ErrNotActive)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestTicketService_CheckIn_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ticket := f.purchase(t, purchaseInput("E"))

	const scanners = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tickets.CheckIn(context.Background(), ticket.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, status.ErrAlreadyCheckedIn) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, scanners-1, rejected)
}

func TestTicketService_CheckInByQR(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 3, 0)
	f.addEvent("F", 3, 0)
	ctx := context.Background()
	f.tickets.newCode = func() (string, error) { return "QR2345", nil }

	in := purchaseInput("E")
	in.UseVerificationCode = true
	ticket := f.purchase(t, in)

	payload, err := f.queries.QRPayload(ctx, ticket.ID)
	require.NoError(t, err)

	_, err = f.tickets.CheckInByQR(ctx, payload, "F")
	assert.ErrorIs(t, err, status.ErrEventMismatch)

	_, err = f.tickets.CheckInByQR(ctx, "not json", "")
	assert.ErrorIs(t, err, status.ErrInvalidQRPayload)

	_, err = f.tickets.CheckInByQR(ctx, `{"ticketNumber":"0000000000000000","eventId":"E","verificationCode":null}`, "E")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)

	forged := strings.Replace(payload, `"eventId":"E"`, `"eventId":"F"`, 1)
	_, err = f.tickets.CheckInByQR(ctx, forged, "")
	assert.ErrorIs(t, err, status.ErrEventMismatch)

	checked, err := f.tickets.CheckInByQR(ctx, payload, "E")
	require.NoError(t, err)
	assert.True(t, checked.CheckedIn)
}

func TestTicketService_Cancel(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 2, 0)
	ctx := context.Background()

	_, err := f.tickets.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)

	ticket := f.purchase(t, purchaseInput("E"))
	cancelled, err := f.tickets.Cancel(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)

	_, err = f.tickets.Cancel(ctx, ticket.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyCancelled)
	_, err = f.tickets.Refund(ctx, ticket.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyCancelled)

	assert.Equal(t, 2, f.settings("E").Available)
	assert.Equal(t, 0, f.settings("E").Sold)
}

func TestTicketService_Cancel_CheckedInTicket(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ctx := context.Background()

	ticket := f.purchase(t, purchaseInput("E"))
	_, err := f.tickets.CheckIn(ctx, ticket.ID, "")
	require.NoError(t, err)

	cancelled, err := f.tickets.Cancel(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketState{
		Lifecycle:  models.TicketStatusCancelled,
		Attendance: models.AttendanceCheckedIn,
	}, cancelled.State())
	assert.NotNil(t, cancelled.CheckedInAt)
}

func TestTicketService_Refund(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ctx := context.Background()

	ticket := f.purchase(t, purchaseInput("E"))
	refunded, err := f.tickets.Refund(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.settings("E").Available)
	assert.Equal(t, 0, f.settings("E").Sold)

	_, err = f.tickets.Cancel(ctx, ticket.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyRefunded)
	_, err = f.tickets.Refund(ctx, ticket.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyRefunded)
}

func TestTicketService_Cancel_SoldFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ctx := context.Background()

	ticket := f.purchase(t, purchaseInput("E"))
	// counters drifted, e.g. edited by hand
	f.addEvent("E", 0, 0)

	_, err := f.tickets.Cancel(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.settings("E").Available)
	assert.Equal(t, 0, f.settings("E").Sold)
}

func TestTicketService_Cancel_MissingEvent(t *testing.T) {
	f := newFixture(t)
	ticket := issueTicket(t, f, "1111000000000001")

	cancelled, err := f.tickets.Cancel(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)
}

func TestTicketService_Cancel_RollsBackOnCounterFailure(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ctx := context.Background()

	ticket := f.purchase(t, purchaseInput("E"))
	f.store.FailOn("SaveTicketSettings", errors.New("write failed"))

	_, err := f.tickets.Cancel(ctx, ticket.ID)
	assert.ErrorIs(t, err, status.ErrStorageFailure)

	stored, err := f.store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusActive, stored.Status)
}

func TestTicketService_UpdateEventTicketSettings(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 5, 7)
	ctx := context.Background()

	event, err := f.tickets.UpdateEventTicketSettings(ctx, "E", models.TicketSettingsUpdate{
		Enabled:   true,
		Available: 100,
		Price:     decimal.RequireFromString("9.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", event.Settings.Currency)
	assert.False(t, event.Settings.VerificationRequired)

	settings := f.settings("E")
	assert.Equal(t, 100, settings.Available)
	assert.Equal(t, 7, settings.Sold, "sold is not settable")
	assert.True(t, decimal.RequireFromString("9.99").Equal(settings.Price))

	_, err = f.tickets.UpdateEventTicketSettings(ctx, "missing", models.TicketSettingsUpdate{})
	assert.ErrorIs(t, err, status.ErrEventNotFound)
}

func TestTicketService_Notifications(t *testing.T) {
	f := newFixture(t)
	f.addEvent("E", 1, 0)
	ctx := context.Background()

	ticket := f.purchase(t, purchaseInput("E"))
	_, err := f.tickets.CheckIn(ctx, ticket.ID, "")
	require.NoError(t, err)
	_, err = f.tickets.Refund(ctx, ticket.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.notifier.kinds()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t,
		[]string{notify.TicketPurchased, notify.TicketCheckedIn, notify.TicketRefunded},
		f.notifier.kinds(),
	)
}
