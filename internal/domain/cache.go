package domain

import (
	"context"
	"time"
)

// RateLimiter throttles swap submission and API traffic across replicas.
// Keys are namespaced by the caller, e.g. "swap:<wallet>".
type RateLimiter interface {
	// Allow counts one request and reports whether it fits in limit per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until key is admitted at the limiter's default rate.
	Wait(ctx context.Context, key string) error
}

// LockManager serializes ticks of one order when several schedulers share a
// database. Acquire returns ErrLockHeld when another replica owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry of an order event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries order and position events: Publish for live fan-out to
// WebSocket clients, streams for replay.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
