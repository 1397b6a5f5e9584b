// Package redisholds keeps ticket number holds in Redis. Each hold is a single
// key whose TTL is the hold's lifetime, so expired holds vanish without a
// sweeper.
package redisholds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

const (
	keyPrefix = "ticket_hold:"
	scanBatch = 500
)

// releaseScript deletes the hold key only while it still belongs to the
// caller, so a late release cannot drop a newer hold on the same number.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type Holds struct {
	redis redis.Cmdable
	newID func() string
}

var _ store.HoldRepository = (*Holds)(nil)

type Option func(*Holds)

// WithIDGenerator overrides the random part of hold IDs.
func WithIDGenerator(fn func() string) Option {
	return func(h *Holds) { h.newID = fn }
}

func New(client redis.Cmdable, opts ...Option) *Holds {
	h := &Holds{
		redis: client,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func holdKey(ticketNumber string) string {
	return keyPrefix + ticketNumber
}

// Hold IDs carry the ticket number so a release needs no second lookup.
func holdID(ticketNumber, random string) string {
	return ticketNumber + "." + random
}

func parseHoldID(id string) (string, bool) {
	number, _, ok := strings.Cut(id, ".")
	return number, ok && number != ""
}

func (h *Holds) CreateHold(ctx context.Context, hold *models.TicketNumberHold) error {
	ttl := hold.ExpiresAt.Sub(hold.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("hold: non-positive ttl %s", ttl)
	}

	id := holdID(hold.TicketNumber, h.newID())
	ok, err := h.redis.SetNX(ctx, holdKey(hold.TicketNumber), id, ttl).Result()
	if err != nil {
		return status.Storage("CreateHold", err)
	}
	if !ok {
		return status.ErrHoldConflict
	}

	hold.ID = id
	return nil
}

func (h *Holds) DeleteHold(ctx context.Context, id string) error {
	number, ok := parseHoldID(id)
	if !ok {
		return status.ErrHoldNotFound
	}

	deleted, err := h.redis.Eval(ctx, releaseScript, []string{holdKey(number)}, id).Int64()
	if err != nil {
		return status.Storage("DeleteHold", err)
	}
	if deleted == 0 {
		return status.ErrHoldNotFound
	}
	return nil
}

// HoldExists ignores now: Redis expiry is authoritative for this backend.
func (h *Holds) HoldExists(ctx context.Context, ticketNumber string, now time.Time) (bool, error) {
	n, err := h.redis.Exists(ctx, holdKey(ticketNumber)).Result()
	if err != nil {
		return false, status.Storage("HoldExists", err)
	}
	return n > 0, nil
}

// DeleteExpiredHolds is a no-op; Redis evicts expired holds itself.
func (h *Holds) DeleteExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

// CountHolds counts live hold keys with SCAN.
func (h *Holds) CountHolds(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		count  int64
	)
	for {
		keys, next, err := h.redis.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return 0, status.Storage("CountHolds", err)
		}
		count += int64(len(keys))
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
