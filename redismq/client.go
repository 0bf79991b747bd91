// Package redismq implements the reliable-delivery protocol layered on
// Redis-Streams primitives: a two-phase consumer read loop with pending
// reclamation, a confirmed-request RPC protocol over an ephemeral
// pub/sub reply channel, and coordinated graceful shutdown.
package redismq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqlog"
)

// ClientStatus is the lifecycle state of a Client, monotonic and one-way
// per spec §3: wait -> connecting -> ready -> closing -> closed.
type ClientStatus int

const (
	StatusWait ClientStatus = iota
	StatusConnecting
	StatusReady
	StatusClosing
	StatusClosed
)

func (s ClientStatus) String() string {
	switch s {
	case StatusWait:
		return "wait"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client owns the connection to the backing store, the producer
// registry, and the in-flight payload tracking set described in §3.
type Client struct {
	backend   Backend
	namespace string
	logger    *zap.Logger

	ownsRedis bool
	redisConn *redis.Client

	mu        sync.Mutex
	status    ClientStatus
	producers map[string]*Producer
	payloads  map[payloadHandle]struct{}
	wg        sync.WaitGroup
}

// payloadHandle is satisfied by both *Payload and *PubSubPayload so the
// Client tracks both under one in-flight set, as §4.5 requires for
// Close's "payloads empty" wait.
type payloadHandle interface {
	isPayloadHandle()
}

// ClientOption configures a Client constructed by Connect.
type ClientOption func(*Client)

// WithLogger overrides the zap.Logger used for DEBUG-level protocol
// logging (default: a no-op logger).
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithNamespace overrides the default "rmq" namespace prefix used for
// reply channels and the reply-id counter key.
func WithNamespace(namespace string) ClientOption {
	return func(c *Client) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// Connect establishes a pooled connection to a redis://-style address,
// issues PING, and returns a Client in the ready state. It fails with
// ErrConnectFailed wrapping the underlying cause on an unreachable
// endpoint or unsuccessful PING, matching the teacher's
// eventbus.NewRedisEventBus convention.
func Connect(ctx context.Context, address string, opts ...ClientOption) (*Client, error) {
	opt, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	conn := redis.NewClient(opt)
	c := newClient(NewRedisBackend(conn), opts...)
	c.ownsRedis = true
	c.redisConn = conn

	c.mu.Lock()
	c.status = StatusConnecting
	c.mu.Unlock()

	if err := c.backend.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.mu.Lock()
	c.status = StatusReady
	c.mu.Unlock()
	return c, nil
}

// NewClientWithBackend builds a Client around an already-connected Backend,
// bypassing Connect's own dial/PING. Useful for tests against a mock or
// miniredis-backed Backend.
func NewClientWithBackend(backend Backend, opts ...ClientOption) *Client {
	c := newClient(backend, opts...)
	c.status = StatusReady
	return c
}

func newClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend:   backend,
		namespace: "rmq",
		logger:    zap.NewNop(),
		producers: make(map[string]*Producer),
		payloads:  make(map[payloadHandle]struct{}),
		status:    StatusWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = mqlog.Component(c.logger, mqlog.ComponentClient)
	return c
}

// Status returns the client's current lifecycle state.
func (c *Client) Status() ClientStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Producer returns the cached Producer for stream, constructing one if
// this is the first call for that stream name (registry uniqueness, §8
// invariant 5: two calls with the same stream return the identical
// Producer).
func (c *Client) Producer(stream string, opts ...ProducerOption) (*Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusClosing || c.status == StatusClosed {
		return nil, ErrClientClosing
	}

	if p, ok := c.producers[stream]; ok {
		return p, nil
	}

	p := &Producer{
		client:     c,
		stream:     stream,
		channelKey: c.namespace + ":responseid",
		maxlen:     100,
		timeout:    10 * time.Second,
		logger:     mqlog.Component(c.logger, mqlog.ComponentProducer).With(zap.String(mqlog.FieldStream, stream)),
	}
	for _, opt := range opts {
		opt(p)
	}
	c.producers[stream] = p
	return p, nil
}

// DisposeProducer removes p from the registry. It fails with
// ErrRegistryMismatch if the producer currently registered for p's
// stream is not p itself.
func (c *Client) DisposeProducer(p *Producer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.producers[p.stream]
	if !ok || existing != p {
		return ErrRegistryMismatch
	}
	delete(c.producers, p.stream)
	return nil
}

// Consumer ensures the consumer group exists (creating it with start-id
// "$" and MKSTREAM if absent), optionally scans XPENDING and claims
// stale entries onto this consumer, and returns a Consumer positioned in
// backlog mode (if anything was claimed) or live mode (otherwise), per
// §4.1 / §9(b).
func (c *Client) Consumer(ctx context.Context, stream, group, name string, opts ...ConsumerOption) (*Consumer, error) {
	if c.Status() == StatusClosing || c.Status() == StatusClosed {
		return nil, ErrClientClosing
	}

	if name == "" {
		name = "consumer-" + uuid.NewString()
	}

	settings := defaultConsumerSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	logger := mqlog.Component(c.logger, mqlog.ComponentConsumer).With(
		zap.String(mqlog.FieldStream, stream),
		zap.String(mqlog.FieldGroup, group),
		zap.String(mqlog.FieldConsumer, name),
	)

	if err := c.ensureGroup(ctx, stream, group, logger); err != nil {
		return nil, err
	}

	cons := &Consumer{
		client:       c,
		stream:       stream,
		group:        group,
		name:         name,
		claimStale:   settings.claimStale,
		minIdle:      settings.minIdle,
		blockTimeout: settings.blockTimeout,
		latestID:     ">",
		checkBacklog: false,
		logger:       logger,
	}

	if settings.scanPendingOnStart {
		claimed, err := cons.claimStaleEntries(ctx)
		if err != nil {
			logger.Debug("pending scan failed", zap.Error(err))
		} else if claimed > 0 {
			cons.latestID = "0-0"
			cons.checkBacklog = true
		}
	}

	return cons, nil
}

func (c *Client) ensureGroup(ctx context.Context, stream, group string, logger *zap.Logger) error {
	groups, err := c.backend.XInfoGroups(ctx, stream)
	exists := false
	if err == nil {
		for _, g := range groups {
			if g.Name == group {
				exists = true
				break
			}
		}
	}
	if exists {
		return nil
	}

	if err := c.backend.XGroupCreateMkStream(ctx, stream, group, "$"); err != nil {
		if isGroupExistsError(err) {
			return nil
		}
		return fmt.Errorf("redismq: create consumer group: %w", err)
	}
	logger.Debug("created consumer group")
	return nil
}

// Close transitions the client to closing, waits for every Payload
// created before the call to reach ack/nack, then releases the
// connection. It returns ErrAlreadyClosed if invoked after closing has
// already begun, and respects ctx cancellation while waiting.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusClosing || c.status == StatusClosed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.status = StatusClosing
	c.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	var closeErr error
	if c.ownsRedis && c.redisConn != nil {
		closeErr = c.redisConn.Close()
	}

	c.mu.Lock()
	c.status = StatusClosed
	c.mu.Unlock()
	return closeErr
}

// active registers p as in-flight, rejecting registration once the
// client has begun closing.
func (c *Client) active(p payloadHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusClosing || c.status == StatusClosed {
		return ErrClientClosing
	}
	c.payloads[p] = struct{}{}
	c.wg.Add(1)
	return nil
}

// inactive marks p as terminal, allowing Close to observe the in-flight
// set becoming empty.
func (c *Client) inactive(p payloadHandle) {
	c.mu.Lock()
	_, tracked := c.payloads[p]
	if tracked {
		delete(c.payloads, p)
	}
	c.mu.Unlock()
	if tracked {
		c.wg.Done()
	}
}
