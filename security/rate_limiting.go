package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/redis/go-redis/v9"

	"github.com/shaunfitzgarald/events-app-sub001/internal/status"
)

const (
	DefaultMaxAttempts   = 10
	DefaultAttemptWindow = 15 * time.Minute
)

// RateLimiter counts check-in attempts in fixed Redis windows so verification
// codes cannot be brute forced.
type RateLimiter struct {
	redis       redis.Cmdable
	maxAttempts int64
	window      time.Duration
}

func NewRateLimiter(redisClient redis.Cmdable, maxAttempts int, window time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &RateLimiter{
		redis:       redisClient,
		maxAttempts: int64(maxAttempts),
		window:      window,
	}
}

func attemptKey(subject string) string {
	return fmt.Sprintf("checkin_attempts:%s", subject)
}

// Allow records one attempt for subject and fails with
// status.ErrTooManyAttempts once the window's budget is spent. Redis errors
// let the attempt through.
func (r *RateLimiter) Allow(ctx context.Context, subject string) error {
	key := attemptKey(subject)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("check-in rate limiter unavailable", "key", key, "error", err)
		return nil
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			slog.Warn("set check-in attempt window", "key", key, "error", err)
		}
	}
	if count > r.maxAttempts {
		return status.ErrTooManyAttempts
	}
	return nil
}

// CheckInRateLimit limits attempts per ticket when the route has a ticketId
// and per client IP otherwise.
func (r *RateLimiter) CheckInRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		subject := e.Request.PathValue("ticketId")
		if subject == "" {
			subject = "ip:" + e.RealIP()
		} else {
			subject = "ticket:" + subject
		}

		if err := r.Allow(e.Request.Context(), subject); err != nil {
			return router.NewTooManyRequestsError("Too many check-in attempts. Please try again later.", nil)
		}
		return e.Next()
	}
}
