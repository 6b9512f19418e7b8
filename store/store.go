// Package store defines the aggregate persistence interface shared by the
// Gate and Worker. Each subsystem (httpjob, route) defines its own store
// interface; the composite Store composes them. Backends: store/redis
// (production) and store/memory (tests/dev).
package store

import (
	"context"
	"time"

	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/route"
	"github.com/relaymesh/gatework/strategy"
)

// Store is the aggregate persistence interface. A single backend
// implements all of it: job persistence, the route registry, the
// strategy package's atomic-counter primitive, plus the worker-queue
// and pub/sub operations used directly by package dispatcher and package
// worker.
type Store interface {
	httpjob.Store
	route.Store
	strategy.Counter

	// QueuePush appends requestID to the named worker queue.
	QueuePush(ctx context.Context, queue, requestID string) error

	// QueuePopBlocking pops the head of the named worker queue, blocking
	// up to timeout. Returns "", nil on timeout with nothing popped.
	QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, error)

	// Publish sends an empty completion signal on the named channel.
	Publish(ctx context.Context, channel string) error

	// Subscribe returns a channel that receives a value whenever Publish
	// is called on the named channel, and a cancel function that must be
	// called to release the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan struct{}, func(), error)

	// Migrate prepares the backend for use (schema/index setup; a no-op
	// for a schemaless store).
	Migrate(ctx context.Context) error

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
