package redismq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqlog"
)

// Payload is the per-message handle returned by Consumer.Read. Exactly
// one of Ack/Nack may be invoked on it (§3, §8 invariant enforced via
// done).
type Payload struct {
	consumer        *Consumer
	id              string
	raw             json.RawMessage
	responseChannel *string
	done            atomic.Bool
}

func (p *Payload) isPayloadHandle() {}

// ID returns the backing-store message id.
func (p *Payload) ID() string { return p.id }

// ResponseChannel reports the reply channel the sender attached to this
// message, if any, for consumers that forward requests onward rather than
// answering them directly.
func (p *Payload) ResponseChannel() (string, bool) {
	if p.responseChannel == nil {
		return "", false
	}
	return *p.responseChannel, true
}

// DiscardResponseChannel suppresses the reply publish a later Ack/Nack
// would otherwise perform. A forwarding consumer that hands the original
// response_channel off to a downstream producer calls this before Ack so
// the original requester only ever hears back once, from the downstream
// reply rather than this hop's own ack.
func (p *Payload) DiscardResponseChannel() {
	p.responseChannel = nil
}

// Decode unmarshals the payload's application message into v.
func (p *Payload) Decode(v any) error {
	return json.Unmarshal(p.raw, v)
}

// Ack acknowledges the message on the stream and, if a reply channel was
// requested, publishes {"message": response, "error": null} there. XACK
// is guaranteed to complete before PUBLISH (§5 ordering invariant 3, §8
// invariant 2).
func (p *Payload) Ack(ctx context.Context, response any) error {
	return p.terminal(ctx, response, nil)
}

// Nack acknowledges the message and, if a reply channel was requested,
// publishes {"message": null, "error": errMsg}. From the wire
// perspective this is equivalent to Ack with a populated error (§4.4).
func (p *Payload) Nack(ctx context.Context, errMsg string) error {
	return p.terminal(ctx, nil, &errMsg)
}

func (p *Payload) terminal(ctx context.Context, response any, errMsg *string) error {
	if !p.done.CompareAndSwap(false, true) {
		return ErrAlreadyAcked
	}

	if _, err := p.consumer.client.backend.XAck(ctx, p.consumer.stream, p.consumer.group, p.id); err != nil {
		return fmt.Errorf("redismq: xack: %w", err)
	}

	if p.responseChannel != nil {
		reply := Reply{Message: response, Error: errMsg}
		if err := p.consumer.client.backend.Publish(ctx, *p.responseChannel, reply); err != nil {
			return fmt.Errorf("redismq: publish reply: %w", err)
		}
		p.consumer.logger.Debug("published reply", zap.String(mqlog.FieldChannel, *p.responseChannel))
	}

	p.consumer.client.inactive(p)
	return nil
}
