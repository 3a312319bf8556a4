package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TicketCache is a read-through Redis cache in front of ticket
// lookups. The lifecycle service invalidates after every committed
// transition, so a hit is never staler than the last commit. Redis
// being down degrades to plain repository reads.
type TicketCache struct {
	inner  TicketRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewTicketCache wraps the given repository. A nil client disables
// caching entirely.
func NewTicketCache(inner TicketRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *TicketCache {
	return &TicketCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func ticketKey(id string) string { return fmt.Sprintf("ticket:id:%s", id) }

// GetByID serves from Redis when possible, falling back to the inner
// repository and populating the cache on a miss.
func (c *TicketCache) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if c.client == nil {
		return c.inner.GetByID(ctx, id)
	}
	raw, err := c.client.Get(ctx, ticketKey(id)).Result()
	if err == nil {
		var ticket domain.Ticket
		if unmarshalErr := json.Unmarshal([]byte(raw), &ticket); unmarshalErr == nil {
			c.hits.Add(1)
			return &ticket, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("ticket cache read failed", zap.String("ticket_id", id), zap.Error(err))
	}

	c.misses.Add(1)
	ticket, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, ticket)
	return ticket, nil
}

// GetByNumber bypasses the cache for the number lookup itself but
// populates the id keyed entry for subsequent reads.
func (c *TicketCache) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := c.inner.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	c.store(ctx, ticket)
	return ticket, nil
}

// Invalidate drops the cached row. Called after every committed
// transition and after delete.
func (c *TicketCache) Invalidate(ctx context.Context, id string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, ticketKey(id)).Err(); err != nil {
		c.logger.Warn("ticket cache invalidation failed", zap.String("ticket_id", id), zap.Error(err))
	}
}

func (c *TicketCache) store(ctx context.Context, ticket *domain.Ticket) {
	if c.client == nil || ticket == nil {
		return
	}
	payload, err := json.Marshal(ticket)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, ticketKey(ticket.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("ticket cache write failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// Stats reports cache effectiveness counters.
func (c *TicketCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
