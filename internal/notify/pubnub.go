// Package notify pushes ticket changes to the owning user's realtime channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/sony/gobreaker"

	"github.com/shaunfitzgarald/events-app-sub001/models"
)

const (
	TicketPurchased  = "ticket_purchased"
	TicketCheckedIn  = "ticket_checked_in"
	TicketCancelled  = "ticket_cancelled"
	TicketRefunded   = "ticket_refunded"
	publishTimeout   = 5 * time.Second
	breakerThreshold = 5
)

type publishFunc func(channel string, message any) error

type PubNubNotifier struct {
	publish publishFunc
	breaker *gobreaker.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return newNotifier(func(channel string, message any) error {
		_, status, err := pn.Publish().
			Channel(channel).
			Message(message).
			Execute()
		if err != nil {
			return err
		}
		if status.Error != nil {
			return status.Error
		}
		return nil
	})
}

func newNotifier(publish publishFunc) *PubNubNotifier {
	return &PubNubNotifier{
		publish: publish,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "pubnub",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// UserChannel is the channel a user's client subscribes to.
func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

// TicketChanged publishes kind for t on the owner's channel. Publishing stops
// for a while after repeated failures instead of waiting on a dead upstream.
func (n *PubNubNotifier) TicketChanged(ctx context.Context, kind string, t *models.Ticket) error {
	message := map[string]any{
		"type":          kind,
		"ticket_id":     t.ID,
		"ticket_number": t.TicketNumber,
		"event_id":      t.EventID,
		"status":        string(t.Status),
		"checked_in":    t.CheckedIn,
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		done := make(chan error, 1)
		go func() { done <- n.publish(UserChannel(t.UserID), message) }()

		select {
		case err := <-done:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(publishTimeout):
			return nil, fmt.Errorf("publish: timed out after %s", publishTimeout)
		}
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	return nil
}
