package redismq

import (
	"context"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqlog"
)

// Publisher is the simple fan-out counterpart to the stream/consumer-
// group core: it PUBLISHes to a fixed default channel list plus whatever
// extra channels a call supplies (§4.5).
type Publisher struct {
	client           *Client
	channels         []string
	skipUnsubscribed bool
	logger           *zap.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithNumSubCheck controls whether Publish first consults PUBSUB NUMSUB
// and skips channels with no subscribers (default true, an
// observable-only optimisation per §4.5).
func WithNumSubCheck(enabled bool) PublisherOption {
	return func(p *Publisher) { p.skipUnsubscribed = enabled }
}

// NewPublisher constructs a Publisher with a default channel list.
func NewPublisher(client *Client, channels []string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:           client,
		channels:         append([]string(nil), channels...),
		skipUnsubscribed: true,
		logger:           mqlog.Component(client.logger, mqlog.ComponentPublisher),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish JSON-encodes message and PUBLISHes it once per distinct
// channel in the union of the constructor channels and extraChannels.
func (p *Publisher) Publish(ctx context.Context, message any, extraChannels ...string) error {
	union := unionChannels(p.channels, extraChannels)
	if len(union) == 0 {
		return nil
	}

	targets := union
	if p.skipUnsubscribed {
		numsub, err := p.client.backend.PubSubNumSub(ctx, union...)
		if err == nil {
			targets = targets[:0]
			for _, ch := range union {
				if numsub[ch] > 0 {
					targets = append(targets, ch)
				}
			}
		} else {
			p.logger.Debug("pubsub numsub failed, publishing to all channels", zap.Error(err))
		}
	}

	for _, ch := range targets {
		if err := p.client.backend.Publish(ctx, ch, message); err != nil {
			return err
		}
		p.logger.Debug("published", zap.String(mqlog.FieldChannel, ch))
	}
	return nil
}

func unionChannels(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	var out []string
	for _, ch := range base {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	for _, ch := range extra {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	return out
}
