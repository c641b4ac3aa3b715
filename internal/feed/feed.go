// Package feed publishes a live, non-authoritative broadcast of flow
// records to Redis pub/sub (SPEC_FULL.md §3.3), adapted from the teacher's
// internal/alarming/state.go StateManager. Unlike the teacher's StateManager
// this package never reads state back: it is a fire-and-forget publisher,
// since spec.md's Non-goals forbid persistent manager state across runs.
package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts flow records over a Redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a publisher bound to addr/channel.
func NewPublisher(addr, password string, db int, channel string) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Publisher{client: client, channel: channel}
}

// Publish broadcasts a single FLOW: line. Errors are returned, not retried —
// callers should log and continue, since this feed is advisory only.
func (p *Publisher) Publish(ctx context.Context, line string) error {
	if err := p.client.Publish(ctx, p.channel, line).Err(); err != nil {
		return fmt.Errorf("failed to publish flow feed message: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
