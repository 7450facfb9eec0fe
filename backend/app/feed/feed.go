// Package feed publishes change notifications agents subscribe to. Delivery
// is best-effort by design: every agent pairs its subscription with a poll,
// so a lost publish only costs one poll interval of staleness.
package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"rynx/backend/global"
	"rynx/protocol"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, ev protocol.ChangeEvent)
}

type RedisPublisher struct{ rdb *redis.Client }

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher { return &RedisPublisher{rdb: rdb} }

func (p *RedisPublisher) Publish(ctx context.Context, channel string, ev protocol.ChangeEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.rdb.Publish(ctx, channel, b).Err(); err != nil {
		global.Logger.Warn().Str("channel", channel).Err(err).Msg("feed publish failed")
	}
}

// Noop is used in tests and when redis is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, protocol.ChangeEvent) {}
