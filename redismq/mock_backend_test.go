package redismq

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// mockBackend is a hand-rolled Backend for unit tests that need to
// observe call ordering or inject failures without standing up a real
// (or miniredis-fake) Redis server, grounded in the teacher's
// mockRedisStreamsClient in internal/eventbus/redis_streams_test.go.
type mockBackend struct {
	mu    sync.Mutex
	calls []string

	counter int64

	xAddErr     error
	xAckErr     error
	publishErr  error
	incrErr     error
	pendingExts []redis.XPendingExt
	claimResult []redis.XMessage
	groups      []redis.XInfoGroup

	publishes []publishCall
}

type publishCall struct {
	channel string
	payload any
}

func newMockBackend() *mockBackend {
	return &mockBackend{}
}

func (m *mockBackend) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockBackend) Ping(ctx context.Context) error { return nil }

func (m *mockBackend) Incr(ctx context.Context, key string) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.mu.Lock()
	m.counter++
	v := m.counter
	m.mu.Unlock()
	return v, nil
}

func (m *mockBackend) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	m.record("xadd")
	if m.xAddErr != nil {
		return "", m.xAddErr
	}
	return "1-1", nil
}

func (m *mockBackend) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	return nil, nil
}

func (m *mockBackend) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	m.record("xack")
	if m.xAckErr != nil {
		return 0, m.xAckErr
	}
	return int64(len(ids)), nil
}

func (m *mockBackend) XClaim(ctx context.Context, args *redis.XClaimArgs) ([]redis.XMessage, error) {
	return m.claimResult, nil
}

func (m *mockBackend) XPending(ctx context.Context, stream, group string) (*redis.XPending, error) {
	return &redis.XPending{Count: int64(len(m.pendingExts))}, nil
}

func (m *mockBackend) XPendingExt(ctx context.Context, args *redis.XPendingExtArgs) ([]redis.XPendingExt, error) {
	return m.pendingExts, nil
}

func (m *mockBackend) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return nil
}

func (m *mockBackend) XInfoGroups(ctx context.Context, stream string) ([]redis.XInfoGroup, error) {
	return m.groups, nil
}

func (m *mockBackend) Publish(ctx context.Context, channel string, payload any) error {
	m.record("publish")
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	m.publishes = append(m.publishes, publishCall{channel: channel, payload: payload})
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) Subscribe(ctx context.Context, channels ...string) PubSub {
	return &mockPubSub{ch: make(chan *redis.Message, 1)}
}

func (m *mockBackend) PubSubNumSub(ctx context.Context, channels ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(channels))
	for _, ch := range channels {
		out[ch] = 1
	}
	return out, nil
}

func (m *mockBackend) PubSubChannels(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

type mockPubSub struct {
	ch chan *redis.Message
}

func (p *mockPubSub) Channel() <-chan *redis.Message { return p.ch }

func (p *mockPubSub) Unsubscribe(context.Context, ...string) error { return nil }

func (p *mockPubSub) Close() error {
	close(p.ch)
	return nil
}
