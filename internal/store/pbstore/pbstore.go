// Package pbstore implements the ticketing Store on top of PocketBase
// collections.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

type Store struct {
	app core.App
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.UserDirectory = (*Store)(nil)
)

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) Tickets() store.TicketRepository { return s }
func (s *Store) Events() store.EventRepository   { return s }
func (s *Store) Holds() store.HoldRepository     { return s }

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&Store{app: txApp})
	})
}

func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return status.Storage(op, err)
}

func dateParam(t time.Time) string {
	return t.UTC().Format(types.DefaultDateLayout)
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(store.CollectionTickets)
	if err != nil {
		return status.Storage("CreateTicket", err)
	}

	record := core.NewRecord(collection)
	writeTicket(record, t)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return status.Storage("CreateTicket", err)
	}

	t.ID = record.Id
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(store.CollectionTickets, id)
	if err != nil {
		return nil, notFound(err, status.ErrTicketNotFound, "GetTicket")
	}
	return readTicket(record)
}

func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	record, err := s.app.FindRecordById(store.CollectionTickets, t.ID)
	if err != nil {
		return notFound(err, status.ErrTicketNotFound, "UpdateTicket")
	}

	writeTicket(record, t)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return status.Storage("UpdateTicket", err)
	}
	return nil
}

func (s *Store) FindTickets(ctx context.Context, filter store.TicketFilter) ([]*models.Ticket, error) {
	where := dbx.HashExp{}
	if filter.EventID != "" {
		where["event_id"] = filter.EventID
	}
	if filter.UserID != "" {
		where["user_id"] = filter.UserID
	}
	if filter.TicketNumber != "" {
		where["ticket_number"] = filter.TicketNumber
	}

	query := s.app.RecordQuery(store.CollectionTickets).
		WithContext(ctx).
		OrderBy("created DESC", "id DESC")
	if len(where) > 0 {
		query = query.AndWhere(where)
	}
	if filter.Limit > 0 {
		query = query.Limit(int64(filter.Limit))
	}

	records := []*core.Record{}
	if err := query.All(&records); err != nil {
		return nil, status.Storage("FindTickets", err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		t, err := readTicket(record)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func writeTicket(record *core.Record, t *models.Ticket) {
	record.Set("ticket_number", t.TicketNumber)
	record.Set("verification_code", t.VerificationCode)
	record.Set("event_id", t.EventID)
	record.Set("user_id", t.UserID)
	record.Set("price", t.Price.InexactFloat64())
	record.Set("currency", t.Currency)
	record.Set("payment", t.Payment)
	record.Set("status", string(t.Status))
	record.Set("checked_in", t.CheckedIn)
	if t.CheckedInAt != nil {
		record.Set("checked_in_at", *t.CheckedInAt)
	} else {
		record.Set("checked_in_at", "")
	}
	record.Set("purchased_at", t.PurchasedAt)
}

func readTicket(record *core.Record) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:               record.Id,
		TicketNumber:     record.GetString("ticket_number"),
		VerificationCode: record.GetString("verification_code"),
		EventID:          record.GetString("event_id"),
		UserID:           record.GetString("user_id"),
		Price:            decimal.NewFromFloat(record.GetFloat("price")),
		Currency:         record.GetString("currency"),
		Status:           models.TicketStatus(record.GetString("status")),
		CheckedIn:        record.GetBool("checked_in"),
		PurchasedAt:      record.GetDateTime("purchased_at").Time(),
	}

	if at := record.GetDateTime("checked_in_at"); !at.IsZero() {
		checkedInAt := at.Time()
		t.CheckedInAt = &checkedInAt
	}

	if err := record.UnmarshalJSONField("payment", &t.Payment); err != nil {
		return nil, status.Storage("readTicket", err)
	}
	return t, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById(store.CollectionEvents, id)
	if err != nil {
		return nil, notFound(err, status.ErrEventNotFound, "GetEvent")
	}

	return &models.Event{
		ID:   record.Id,
		Name: record.GetString("name"),
		Settings: models.TicketSettings{
			Enabled:              record.GetBool("tickets_enabled"),
			Available:            record.GetInt("tickets_available"),
			Sold:                 record.GetInt("tickets_sold"),
			Price:                decimal.NewFromFloat(record.GetFloat("ticket_price")),
			Currency:             record.GetString("ticket_currency"),
			VerificationRequired: record.GetBool("ticket_verification_required"),
		},
	}, nil
}

func (s *Store) SaveTicketSettings(ctx context.Context, id string, settings models.TicketSettings) error {
	record, err := s.app.FindRecordById(store.CollectionEvents, id)
	if err != nil {
		return notFound(err, status.ErrEventNotFound, "SaveTicketSettings")
	}

	record.Set("tickets_enabled", settings.Enabled)
	record.Set("tickets_available", settings.Available)
	record.Set("tickets_sold", settings.Sold)
	record.Set("ticket_price", settings.Price.InexactFloat64())
	record.Set("ticket_currency", settings.Currency)
	record.Set("ticket_verification_required", settings.VerificationRequired)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return status.Storage("SaveTicketSettings", err)
	}
	return nil
}

func (s *Store) CreateHold(ctx context.Context, h *models.TicketNumberHold) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		existing, err := txApp.FindFirstRecordByData(store.CollectionHolds, "ticket_number", h.TicketNumber)
		switch {
		case err == nil:
			if existing.GetDateTime("expires_at").Time().After(h.CreatedAt) {
				return status.ErrHoldConflict
			}
			// an expired hold still owns the unique index slot
			if err := txApp.DeleteWithContext(ctx, existing); err != nil {
				return status.Storage("CreateHold", err)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return status.Storage("CreateHold", err)
		}

		collection, err := txApp.FindCachedCollectionByNameOrId(store.CollectionHolds)
		if err != nil {
			return status.Storage("CreateHold", err)
		}

		record := core.NewRecord(collection)
		record.Set("ticket_number", h.TicketNumber)
		record.Set("user_id", h.UserID)
		record.Set("held_at", h.CreatedAt)
		record.Set("expires_at", h.ExpiresAt)
		if err := txApp.SaveWithContext(ctx, record); err != nil {
			return status.Storage("CreateHold", err)
		}

		h.ID = record.Id
		return nil
	})
}

func (s *Store) DeleteHold(ctx context.Context, id string) error {
	record, err := s.app.FindRecordById(store.CollectionHolds, id)
	if err != nil {
		return notFound(err, status.ErrHoldNotFound, "DeleteHold")
	}
	if err := s.app.DeleteWithContext(ctx, record); err != nil {
		return status.Storage("DeleteHold", err)
	}
	return nil
}

func (s *Store) HoldExists(ctx context.Context, ticketNumber string, now time.Time) (bool, error) {
	records, err := s.app.FindRecordsByFilter(
		store.CollectionHolds,
		"ticket_number = {:number} && expires_at > {:now}",
		"",
		1,
		0,
		dbx.Params{"number": ticketNumber, "now": dateParam(now)},
	)
	if err != nil {
		return false, status.Storage("HoldExists", err)
	}
	return len(records) > 0, nil
}

func (s *Store) DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	records, err := s.app.FindRecordsByFilter(
		store.CollectionHolds,
		"expires_at <= {:now}",
		"expires_at",
		limit,
		0,
		dbx.Params{"now": dateParam(now)},
	)
	if err != nil {
		return 0, status.Storage("DeleteExpiredHolds", err)
	}

	deleted := 0
	for _, record := range records {
		if err := s.app.DeleteWithContext(ctx, record); err != nil {
			return deleted, status.Storage("DeleteExpiredHolds", err)
		}
		deleted++
	}
	return deleted, nil
}

// CountHolds counts holds that have not expired yet.
func (s *Store) CountHolds(ctx context.Context) (int64, error) {
	count, err := s.app.CountRecords(
		store.CollectionHolds,
		dbx.NewExp("expires_at > {:now}", dbx.Params{"now": dateParam(time.Now())}),
	)
	if err != nil {
		return 0, status.Storage("CountHolds", err)
	}
	return count, nil
}

// DisplayName returns the user's name, falling back to the email address.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	record, err := s.app.FindRecordById(store.CollectionUsers, userID)
	if err != nil {
		return "", notFound(err, status.ErrNotFound, "DisplayName")
	}
	if name := record.GetString("name"); name != "" {
		return name, nil
	}
	return record.Email(), nil
}
