// Package ratelimit throttles repeated init-key fetches using Redis
// counters. Fetching a member's init key is the one read directory-server
// exposes to strangers (anyone who knows a userName can ask for their
// key), so it is also the one endpoint worth metering: a single identity
// being fetched far more often than anyone else's is what a prekey-draining
// attack looks like, not just ordinary traffic.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTargetDrained is returned when one identity is being fetched far
	// more than the rest, independent of who is asking.
	ErrTargetDrained = errors.New("target init key fetched too frequently")
)

// Limiter counts init-key fetches in Redis. A nil Limiter, or one
// constructed over a nil client, allows every request: directory-server
// runs without Redis configured degrades to unthrottled rather than
// refusing to serve keys.
type Limiter struct {
	redis *redis.Client
}

func NewLimiter(redis *redis.Client) *Limiter {
	return &Limiter{redis: redis}
}

// FetchLimits bounds init-key fetch traffic from three angles.
type FetchLimits struct {
	RequesterLimit  int
	RequesterWindow time.Duration

	TargetLimit  int
	TargetWindow time.Duration

	IPLimit  int
	IPWindow time.Duration
}

func DefaultFetchLimits() FetchLimits {
	return FetchLimits{
		RequesterLimit:  10,
		RequesterWindow: time.Minute,
		TargetLimit:     50,
		TargetWindow:    time.Minute,
		IPLimit:         100,
		IPWindow:        time.Minute,
	}
}

// CheckInitKeyFetch applies all three limits to one fetch of targetUser's
// init key by requesterUser from ip. requesterUser and ip may be empty if
// unknown; an empty value's limit is skipped.
func (l *Limiter) CheckInitKeyFetch(ctx context.Context, requesterUser, targetUser, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}

	limits := DefaultFetchLimits()

	if requesterUser != "" {
		key := fmt.Sprintf("ratelimit:initkey:requester:%s", requesterUser)
		if err := l.incr(ctx, key, limits.RequesterLimit, limits.RequesterWindow); err != nil {
			log.Printf("[ratelimit] requester %s exceeded init-key fetch limit", requesterUser)
			return ErrRateLimited
		}
	}

	targetKey := fmt.Sprintf("ratelimit:initkey:target:%s", targetUser)
	if err := l.incr(ctx, targetKey, limits.TargetLimit, limits.TargetWindow); err != nil {
		log.Printf("[ratelimit] target %s fetched past the drain threshold", targetUser)
		return ErrTargetDrained
	}

	if ip != "" {
		ipKey := fmt.Sprintf("ratelimit:initkey:ip:%s", ip)
		if err := l.incr(ctx, ipKey, limits.IPLimit, limits.IPWindow); err != nil {
			return ErrRateLimited
		}
	}

	return nil
}

// incr bumps key and fails closed only when the Redis round trip itself
// succeeds and the post-increment count exceeds limit; a Redis error
// fails open so an outage degrades to unthrottled, not unavailable.
func (l *Limiter) incr(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}
	if int(count) > limit {
		return ErrRateLimited
	}
	return nil
}
