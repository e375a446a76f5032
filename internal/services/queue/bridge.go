// Package queue carries tool calls and their results over named queues backed
// by Redis Streams. Delivery is at-least-once: an entry is acknowledged only
// after its handler succeeds, and entries left pending by a crashed consumer
// are reclaimed once they have been idle long enough.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/pkg/logger"
)

const (
	bodyField = "body"

	defaultPrefix       = "queue:"
	defaultBlockTimeout = 5 * time.Second
	defaultClaimIdle    = time.Minute
	defaultReadCount    = 10
	idleRetryDelay      = time.Second
)

// Handler processes one delivery. Returning an error leaves the entry
// pending so it is redelivered.
type Handler func(ctx context.Context, d Delivery) error

type Bridge struct {
	client    redis.Cmdable
	prefix    string
	consumer  string
	block     time.Duration
	claimIdle time.Duration
	count     int64
}

type Option func(*Bridge)

// WithBlockTimeout bounds each stream read. Non-positive values keep the
// default, since a zero block waits forever.
func WithBlockTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.block = d
		}
	}
}

func WithClaimIdle(d time.Duration) Option {
	return func(b *Bridge) { b.claimIdle = d }
}

func WithConsumerName(name string) Option {
	return func(b *Bridge) { b.consumer = name }
}

func WithPrefix(prefix string) Option {
	return func(b *Bridge) { b.prefix = prefix }
}

func NewBridge(client redis.Cmdable, opts ...Option) *Bridge {
	b := &Bridge{
		client:    client,
		prefix:    defaultPrefix,
		consumer:  defaultConsumerName(),
		block:     defaultBlockTimeout,
		claimIdle: defaultClaimIdle,
		count:     defaultReadCount,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Stream returns the Redis stream key backing a queue.
func (b *Bridge) Stream(queue string) string {
	return b.prefix + queue
}

// Send publishes payload as base64-wrapped JSON and returns the entry id.
func (b *Bridge) Send(ctx context.Context, queue string, payload interface{}) (string, error) {
	body, err := Encode(payload)
	if err != nil {
		return "", fmt.Errorf("queue %s: %w", queue, err)
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.Stream(queue),
		Values: map[string]interface{}{bodyField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue %s: send: %w", queue, err)
	}

	log.Debug().Str("queue", queue).Str("entry_id", id).Msg("Sent queue message")
	return id, nil
}

// Consume delivers entries of queue to handler as member of group until ctx
// is done. Several consumers may share a group; each entry goes to one of them.
func (b *Bridge) Consume(ctx context.Context, queue, group string, handler Handler) error {
	stream := b.Stream(queue)
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	l := logger.For(logger.QUEUE).With().Str("queue", queue).Str("group", group).Str("consumer", b.consumer).Logger()
	l.Info().Msg("Queue consumer started")

	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			l.Info().Msg("Queue consumer stopped")
			return nil
		}

		if time.Since(lastClaim) >= b.claimIdle {
			b.reclaim(ctx, queue, group, handler)
			lastClaim = time.Now()
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    b.count,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			if isNoGroup(err) {
				if err := b.ensureGroup(ctx, stream, group); err != nil {
					l.Error().Err(err).Msg("Failed to recreate consumer group")
				}
				continue
			}
			l.Error().Err(err).Msg("Failed to read from queue")
			sleep(ctx, idleRetryDelay)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.deliver(ctx, queue, group, msg, handler)
			}
		}
	}
}

func (b *Bridge) ensureGroup(ctx context.Context, stream, group string) error {
	// "0" so entries published before the group existed are still delivered.
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("queue: create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// reclaim takes over entries another consumer left pending for too long.
func (b *Bridge) reclaim(ctx context.Context, queue, group string, handler Handler) {
	start := "0-0"
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.Stream(queue),
			Group:    group,
			MinIdle:  b.claimIdle,
			Start:    start,
			Count:    b.count,
			Consumer: b.consumer,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Str("queue", queue).Msg("Failed to reclaim pending queue messages")
			}
			return
		}

		for _, msg := range msgs {
			log.Info().Str("queue", queue).Str("entry_id", msg.ID).Msg("Redelivering pending queue message")
			b.deliver(ctx, queue, group, msg, handler)
		}

		if next == "" || next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (b *Bridge) deliver(ctx context.Context, queue, group string, msg redis.XMessage, handler Handler) {
	l := logger.For(logger.QUEUE).With().Str("queue", queue).Str("entry_id", msg.ID).Logger()

	body, err := decodeBody(msg.Values[bodyField])
	if err != nil {
		// Poison entries are dropped; redelivery cannot fix them.
		l.Error().Err(err).Msg("Dropping undecodable queue message")
		b.ack(ctx, queue, group, msg.ID)
		return
	}

	if err := handler(ctx, Delivery{ID: msg.ID, Queue: queue, Body: body}); err != nil {
		l.Warn().Err(err).Msg("Queue handler failed, message left pending")
		return
	}
	b.ack(ctx, queue, group, msg.ID)
}

func (b *Bridge) ack(ctx context.Context, queue, group, id string) {
	if err := b.client.XAck(context.WithoutCancel(ctx), b.Stream(queue), group, id).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Str("entry_id", id).Msg("Failed to acknowledge queue message")
	}
}

func isNoGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "NOGROUP")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
