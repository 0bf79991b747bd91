package redismq

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Backend is the contract this package requires from a Redis-Streams-
// compatible backing store. It is the Go analogue of the teacher's
// eventbus.RedisStreamsClient, expanded with the pub/sub and counter
// verbs the confirmed-request protocol and fan-out layer need (§6).
//
// This is intentionally a thin, mechanical wrapper: every method maps to
// exactly one backing-store verb. Implementations may be backed by a real
// Redis server, by miniredis in tests, or by a hand-rolled mock.
type Backend interface {
	// Ping is the readiness probe used by Connect.
	Ping(ctx context.Context) error

	// Incr atomically increments the 64-bit counter at key and returns
	// the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// XAdd appends an entry to a stream and returns the assigned id.
	XAdd(ctx context.Context, args *redis.XAddArgs) (string, error)

	// XReadGroup reads entries from a stream for a consumer group,
	// blocking up to args.Block. Returns redis.Nil itself (not wrapped)
	// when the block timeout elapses with nothing to deliver.
	XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error)

	// XAck acknowledges processed messages, removing them from the
	// pending-entries list.
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)

	// XClaim transfers ownership of pending entries to consumer.
	XClaim(ctx context.Context, args *redis.XClaimArgs) ([]redis.XMessage, error)

	// XPending returns the pending-entries summary for a group.
	XPending(ctx context.Context, stream, group string) (*redis.XPending, error)

	// XPendingExt returns the detailed per-entry pending listing.
	XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) ([]redis.XPendingExt, error)

	// XGroupCreateMkStream creates a consumer group (and the stream, if
	// absent) starting at id start. It is expected to be idempotent from
	// the caller's perspective: BUSYGROUP errors are handled by the
	// caller, not swallowed here.
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error

	// XInfoGroups returns the consumer groups registered on a stream.
	// A missing stream/group is reported through err, not a special
	// sentinel value, so callers can distinguish "absent" from "error".
	XInfoGroups(ctx context.Context, stream string) ([]redis.XInfoGroup, error)

	// Publish fires a message on a pub/sub channel.
	Publish(ctx context.Context, channel string, payload any) error

	// Subscribe opens a pub/sub subscription to one or more channels.
	Subscribe(ctx context.Context, channels ...string) PubSub

	// PubSubNumSub reports the subscriber count of each named channel.
	PubSubNumSub(ctx context.Context, channels ...string) (map[string]int64, error)

	// PubSubChannels lists currently active channels matching pattern.
	PubSubChannels(ctx context.Context, pattern string) ([]string, error)
}

// PubSub is the narrow slice of *redis.PubSub this package depends on,
// so tests can substitute a fake subscription.
type PubSub interface {
	Channel() <-chan *redis.Message
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}
