package remote

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"rynx/agent/internal/logger"
)

// Feed is the push side of the transport. Delivery is best-effort: a dropped
// connection is retried with capped backoff, and consumers always pair a
// subscription with a poll so staleness stays bounded.
type Feed struct {
	rdb *redis.Client
}

func NewFeed(addr string) *Feed {
	return &Feed{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (f *Feed) Close() error { return f.rdb.Close() }

// Subscribe invokes fn for every message published on channel until ctx is
// canceled. fn receives no payload on purpose: consumers re-read
// authoritative state instead of trusting the event body.
func (f *Feed) Subscribe(ctx context.Context, channel string, fn func()) {
	go func() {
		const (
			baseDelay     = time.Second
			maxDelay      = 30 * time.Second
			backoffFactor = 1.5
		)
		delay := baseDelay
		for {
			if ctx.Err() != nil {
				return
			}
			sub := f.rdb.Subscribe(ctx, channel)
			ch := sub.Channel()
			logger.Infof("subscribed to %s", channel)
			delay = baseDelay
		recv:
			for {
				select {
				case <-ctx.Done():
					_ = sub.Close()
					return
				case _, ok := <-ch:
					if !ok {
						break recv
					}
					fn()
				}
			}
			_ = sub.Close()
			logger.Warnf("subscription to %s dropped, retrying in %v", channel, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * backoffFactor)
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}()
}
