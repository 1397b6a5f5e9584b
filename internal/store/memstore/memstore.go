// Package memstore is an in-memory Store used by tests and local tooling.
// Transactions are serialized by a single mutex and roll back by restoring a
// snapshot taken when the transaction began.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

type Store struct {
	shared *shared
	inTx   bool
}

type shared struct {
	mu     sync.Mutex
	data   *state
	faults map[string]error
	calls  map[string]int
}

type state struct {
	tickets map[string]*models.Ticket
	order   []string
	events  map[string]*models.Event
	holds   map[string]*models.TicketNumberHold
	users   map[string]string
}

var _ store.Store = (*Store)(nil)

var errDuplicateNumber = errors.New("ticket_number must be unique")

func New() *Store {
	return &Store{shared: &shared{
		data:   newState(),
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}}
}

func newState() *state {
	return &state{
		tickets: make(map[string]*models.Ticket),
		events:  make(map[string]*models.Event),
		holds:   make(map[string]*models.TicketNumberHold),
		users:   make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, t := range s.tickets {
		c.tickets[id] = t.Clone()
	}
	c.order = slices.Clone(s.order)
	for id, e := range s.events {
		ev := *e
		c.events[id] = &ev
	}
	for id, h := range s.holds {
		hold := *h
		c.holds[id] = &hold
	}
	for id, name := range s.users {
		c.users[id] = name
	}
	return c
}

// FailOn makes every later call of op return err until ClearFailures.
// Op names match the repository method names, e.g. "CreateTicket".
func (s *Store) FailOn(op string, err error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.faults[op] = err
}

func (s *Store) ClearFailures() {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	clear(s.shared.faults)
}

// Calls reports how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	return s.shared.calls[op]
}

func (s *Store) PutEvent(e models.Event) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.data.events[e.ID] = &e
}

// Event returns a snapshot of the stored event.
func (s *Store) Event(id string) (models.Event, bool) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	e, ok := s.shared.data.events[id]
	if !ok {
		return models.Event{}, false
	}
	return *e, true
}

func (s *Store) PutUser(id, name string) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.data.users[id] = name
}

// PutHold stores h as-is, bypassing conflict checks.
func (s *Store) PutHold(h models.TicketNumberHold) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.data.holds[h.ID] = &h
}

// HeldNumbers lists the ticket numbers of every stored hold, expired or not.
func (s *Store) HeldNumbers() []string {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	numbers := make([]string, 0, len(s.shared.data.holds))
	for _, h := range s.shared.data.holds {
		numbers = append(numbers, h.TicketNumber)
	}
	slices.Sort(numbers)
	return numbers
}

func (s *Store) Tickets() store.TicketRepository { return s }
func (s *Store) Events() store.EventRepository   { return s }
func (s *Store) Holds() store.HoldRepository     { return s }

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	snapshot := s.shared.data.clone()
	if err := fn(&Store{shared: s.shared, inTx: true}); err != nil {
		s.shared.data = snapshot
		return err
	}
	return nil
}

// begin locks the store unless the call runs inside WithTx, records the call
// and returns the injected fault for op, if any.
func (s *Store) begin(op string) (func(), error) {
	unlock := func() {}
	if !s.inTx {
		s.shared.mu.Lock()
		unlock = s.shared.mu.Unlock
	}
	s.shared.calls[op]++
	if err := s.shared.faults[op]; err != nil {
		return unlock, status.Storage(op, err)
	}
	return unlock, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	unlock, err := s.begin("CreateTicket")
	defer unlock()
	if err != nil {
		return err
	}

	for _, existing := range s.shared.data.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return status.Storage("CreateTicket", errDuplicateNumber)
		}
	}

	t.ID = uuid.NewString()
	s.shared.data.tickets[t.ID] = t.Clone()
	s.shared.data.order = append(s.shared.data.order, t.ID)
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	unlock, err := s.begin("GetTicket")
	defer unlock()
	if err != nil {
		return nil, err
	}

	t, ok := s.shared.data.tickets[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	unlock, err := s.begin("UpdateTicket")
	defer unlock()
	if err != nil {
		return err
	}

	if _, ok := s.shared.data.tickets[t.ID]; !ok {
		return status.ErrTicketNotFound
	}
	s.shared.data.tickets[t.ID] = t.Clone()
	return nil
}

func (s *Store) FindTickets(ctx context.Context, filter store.TicketFilter) ([]*models.Ticket, error) {
	unlock, err := s.begin("FindTickets")
	defer unlock()
	if err != nil {
		return nil, err
	}

	result := []*models.Ticket{}
	// newest first, matching the PocketBase store's "-created" sort
	for i := len(s.shared.data.order) - 1; i >= 0; i-- {
		t := s.shared.data.tickets[s.shared.data.order[i]]
		if filter.EventID != "" && t.EventID != filter.EventID {
			continue
		}
		if filter.UserID != "" && t.UserID != filter.UserID {
			continue
		}
		if filter.TicketNumber != "" && t.TicketNumber != filter.TicketNumber {
			continue
		}
		result = append(result, t.Clone())
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	unlock, err := s.begin("GetEvent")
	defer unlock()
	if err != nil {
		return nil, err
	}

	e, ok := s.shared.data.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	ev := *e
	return &ev, nil
}

func (s *Store) SaveTicketSettings(ctx context.Context, id string, settings models.TicketSettings) error {
	unlock, err := s.begin("SaveTicketSettings")
	defer unlock()
	if err != nil {
		return err
	}

	e, ok := s.shared.data.events[id]
	if !ok {
		return status.ErrEventNotFound
	}
	e.Settings = settings
	return nil
}

func (s *Store) CreateHold(ctx context.Context, h *models.TicketNumberHold) error {
	unlock, err := s.begin("CreateHold")
	defer unlock()
	if err != nil {
		return err
	}

	for id, existing := range s.shared.data.holds {
		if existing.TicketNumber != h.TicketNumber {
			continue
		}
		if !existing.Expired(h.CreatedAt) {
			return status.ErrHoldConflict
		}
		delete(s.shared.data.holds, id)
	}

	h.ID = uuid.NewString()
	hold := *h
	s.shared.data.holds[h.ID] = &hold
	return nil
}

func (s *Store) DeleteHold(ctx context.Context, id string) error {
	unlock, err := s.begin("DeleteHold")
	defer unlock()
	if err != nil {
		return err
	}

	if _, ok := s.shared.data.holds[id]; !ok {
		return status.ErrHoldNotFound
	}
	delete(s.shared.data.holds, id)
	return nil
}

func (s *Store) HoldExists(ctx context.Context, ticketNumber string, now time.Time) (bool, error) {
	unlock, err := s.begin("HoldExists")
	defer unlock()
	if err != nil {
		return false, err
	}

	for _, h := range s.shared.data.holds {
		if h.TicketNumber == ticketNumber && !h.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	unlock, err := s.begin("DeleteExpiredHolds")
	defer unlock()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for id, h := range s.shared.data.holds {
		if limit > 0 && deleted >= limit {
			break
		}
		if h.Expired(now) {
			delete(s.shared.data.holds, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	unlock, err := s.begin("DisplayName")
	defer unlock()
	if err != nil {
		return "", err
	}

	name, ok := s.shared.data.users[userID]
	if !ok {
		return "", status.ErrNotFound
	}
	return name, nil
}
