package redismq

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// redisBackend adapts *redis.Client to the Backend interface, the same
// shape as the teacher's RedisStreamsClientAdapter generalized to also
// cover INCR/PING/PUBLISH/SUBSCRIBE/PUBSUB.
type redisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing *redis.Client as a Backend.
func NewRedisBackend(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *redisBackend) Incr(ctx context.Context, key string) (int64, error) {
	return b.client.Incr(ctx, key).Result()
}

func (b *redisBackend) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	return b.client.XAdd(ctx, args).Result()
}

func (b *redisBackend) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	return b.client.XReadGroup(ctx, args).Result()
}

func (b *redisBackend) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return b.client.XAck(ctx, stream, group, ids...).Result()
}

func (b *redisBackend) XClaim(ctx context.Context, args *redis.XClaimArgs) ([]redis.XMessage, error) {
	return b.client.XClaim(ctx, args).Result()
}

func (b *redisBackend) XPending(ctx context.Context, stream, group string) (*redis.XPending, error) {
	return b.client.XPending(ctx, stream, group).Result()
}

func (b *redisBackend) XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) ([]redis.XPendingExt, error) {
	return b.client.XPendingExt(ctx, args).Result()
}

func (b *redisBackend) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return b.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
}

func (b *redisBackend) XInfoGroups(ctx context.Context, stream string) ([]redis.XInfoGroup, error) {
	return b.client.XInfoGroups(ctx, stream).Result()
}

func (b *redisBackend) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, data).Err()
}

func (b *redisBackend) Subscribe(ctx context.Context, channels ...string) PubSub {
	return &redisPubSub{ps: b.client.Subscribe(ctx, channels...)}
}

// redisPubSub adapts *redis.PubSub's variadic Channel(opts ...ChannelOption)
// to the narrower, fixed PubSub.Channel() this package depends on.
type redisPubSub struct {
	ps *redis.PubSub
}

func (r *redisPubSub) Channel() <-chan *redis.Message {
	return r.ps.Channel()
}

func (r *redisPubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	return r.ps.Unsubscribe(ctx, channels...)
}

func (r *redisPubSub) Close() error {
	return r.ps.Close()
}

func (b *redisBackend) PubSubNumSub(ctx context.Context, channels ...string) (map[string]int64, error) {
	return b.client.PubSubNumSub(ctx, channels...).Result()
}

func (b *redisBackend) PubSubChannels(ctx context.Context, pattern string) ([]string, error) {
	return b.client.PubSubChannels(ctx, pattern).Result()
}

// isGroupExistsError checks if the error indicates the consumer group
// already exists, the same BUSYGROUP check the teacher's eventbus package
// performs.
func isGroupExistsError(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "BUSYGROUP Consumer Group name already exists"
}
