package redismq

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqlog"
)

const defaultSubscriberQueueSize = 100

// PubSubPayload is the Subscriber's analogue of Payload: it carries a
// fan-out message, but Ack merely marks it inactive in the Client's
// tracking set — pub/sub has no persistence, so there is no XACK (§4.5).
type PubSubPayload struct {
	client  *Client
	channel string
	raw     json.RawMessage
	done    atomic.Bool
}

func (p *PubSubPayload) isPayloadHandle() {}

// Channel reports which channel the message arrived on.
func (p *PubSubPayload) Channel() string { return p.channel }

// Decode unmarshals the message into v.
func (p *PubSubPayload) Decode(v any) error {
	return json.Unmarshal(p.raw, v)
}

// Ack marks the payload inactive. It is the only terminal operation a
// pub/sub payload supports.
func (p *PubSubPayload) Ack() error {
	if !p.done.CompareAndSwap(false, true) {
		return ErrAlreadyAcked
	}
	p.client.inactive(p)
	return nil
}

// Subscriber wraps a pub/sub subscription to one or more channels with a
// background reader that enqueues messages into a bounded in-memory
// queue; Read drains it. When the queue is full, the reader suspends
// until Read makes room (§5 back-pressure).
type Subscriber struct {
	client   *Client
	channels []string
	sub      PubSub
	queue    chan *PubSubPayload
	done     chan struct{}
	closeOne sync.Once
	logger   *zap.Logger
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithQueueSize overrides the default bounded-queue capacity (100).
func WithQueueSize(n int) SubscriberOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.queue = make(chan *PubSubPayload, n)
		}
	}
}

// NewSubscriber subscribes to channels and starts the background reader.
func NewSubscriber(client *Client, channels []string, opts ...SubscriberOption) (*Subscriber, error) {
	s := &Subscriber{
		client:   client,
		channels: append([]string(nil), channels...),
		queue:    make(chan *PubSubPayload, defaultSubscriberQueueSize),
		done:     make(chan struct{}),
		logger:   mqlog.Component(client.logger, mqlog.ComponentSubscriber),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sub = client.backend.Subscribe(context.Background(), channels...)
	go s.loop()
	return s, nil
}

func (s *Subscriber) loop() {
	defer close(s.queue)
	ch := s.sub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !json.Valid([]byte(msg.Payload)) {
				s.logger.Debug("dropping malformed pubsub message", zap.String(mqlog.FieldChannel, msg.Channel))
				continue
			}
			payload := &PubSubPayload{
				client:  s.client,
				channel: msg.Channel,
				raw:     json.RawMessage(msg.Payload),
			}
			select {
			case s.queue <- payload:
			case <-s.done:
				return
			}
		}
	}
}

// Read returns the next queued payload, awaiting one if none is ready.
func (s *Subscriber) Read(ctx context.Context) (*PubSubPayload, error) {
	select {
	case payload, ok := <-s.queue:
		if !ok {
			return nil, ErrSubscriberClosed
		}
		if err := s.client.active(payload); err != nil {
			return nil, err
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes and stops the background reader. Idempotent.
func (s *Subscriber) Close() error {
	var err error
	s.closeOne.Do(func() {
		close(s.done)
		_ = s.sub.Unsubscribe(context.Background(), s.channels...)
		err = s.sub.Close()
	})
	return err
}
