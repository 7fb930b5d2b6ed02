package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

const recentEventsLimit = 500

// RedisPublisher mirrors job events onto a pub/sub channel and keeps the
// most recent ones in a capped list for dashboards that connect late.
type RedisPublisher struct {
	rdb       *redis.Client
	channel   string
	recentKey string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{
		rdb:       rdb,
		channel:   channel,
		recentKey: channel + ":recent",
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event core.JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.LPush(ctx, p.recentKey, payload)
		pipe.LTrim(ctx, p.recentKey, 0, recentEventsLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}
	return nil
}

// Handler adapts the publisher for Bus.Subscribe.
func (p *RedisPublisher) Handler() Handler {
	return p.Publish
}

// Recent returns up to n stored events, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, n int64) ([]core.JobEvent, error) {
	if n <= 0 || n > recentEventsLimit {
		n = recentEventsLimit
	}
	raw, err := p.rdb.LRange(ctx, p.recentKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	events := make([]core.JobEvent, 0, len(raw))
	for _, r := range raw {
		var ev core.JobEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			log.Warn().Err(err).Msg("skipping malformed event in redis")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Watch delivers channel messages to handler until ctx is done.
func (p *RedisPublisher) Watch(ctx context.Context, handler Handler) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev core.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping malformed event")
				continue
			}
			if err := handler(ctx, ev); err != nil {
				return err
			}
		}
	}
}
