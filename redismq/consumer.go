package redismq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Consumer reads from one stream within one consumer group under one
// consumer identity. Its read cursor is the two-valued scheme from §9:
// ">" means live (next undelivered entry); any other id is a backlog
// position within this consumer's own pending list.
type Consumer struct {
	client *Client
	stream string
	group  string
	name   string

	claimStale   bool
	minIdle      time.Duration
	blockTimeout time.Duration

	latestID     string
	checkBacklog bool

	logger *zap.Logger
}

// Read delivers the next Payload, draining this consumer's own backlog
// first (if claiming found stale entries at construction) before
// flipping permanently to the live tail, per §4.3 and §8 invariant 7.
// A read in progress is cancellable via ctx; cancellation latency is
// bounded by the block timeout in live mode.
func (c *Consumer) Read(ctx context.Context) (*Payload, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		id := c.latestID
		block := c.blockTimeout
		if c.checkBacklog {
			// Backlog replay is a non-blocking drain of our own pending
			// list; an empty result is the signal to flip to live mode.
			// A negative Block makes go-redis omit BLOCK entirely.
			block = -1
		}

		msgs, err := c.xreadOnce(ctx, id, block)
		if err != nil {
			return nil, err
		}

		if len(msgs) == 0 {
			if c.checkBacklog {
				c.checkBacklog = false
				c.latestID = ">"
			}
			continue
		}

		msg := msgs[0]
		payload, ok := c.buildPayload(ctx, msg)
		if !ok {
			// Malformed message: already XACKed inside buildPayload.
			continue
		}

		if c.checkBacklog {
			c.latestID = msg.ID
		}

		if err := c.client.active(payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func (c *Consumer) xreadOnce(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.backend.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, id},
		Count:    1,
		Block:    block,
		NoAck:    false,
	})
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redismq: xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// buildPayload decodes a raw stream message. On a non-JSON "message"
// field it XACKs the offender immediately (so it is not redelivered) and
// reports ok=false, matching §4.3's ProtocolError recovery.
func (c *Consumer) buildPayload(ctx context.Context, msg redis.XMessage) (*Payload, bool) {
	raw, ok := msg.Values["message"]
	if !ok {
		c.dropMalformed(ctx, msg.ID, "missing message field")
		return nil, false
	}
	dataStr, ok := raw.(string)
	if !ok || !json.Valid([]byte(dataStr)) {
		c.dropMalformed(ctx, msg.ID, "message field is not valid JSON")
		return nil, false
	}

	var respChannel *string
	if v, ok := msg.Values["response_channel"]; ok {
		if s, ok := v.(string); ok && s != "" {
			respChannel = &s
		}
	}

	return &Payload{
		consumer:        c,
		id:              msg.ID,
		raw:             json.RawMessage(dataStr),
		responseChannel: respChannel,
	}, true
}

func (c *Consumer) dropMalformed(ctx context.Context, id, reason string) {
	c.logger.Debug("dropping malformed message", zap.String("message_id", id), zap.String("reason", reason))
	if _, err := c.client.backend.XAck(ctx, c.stream, c.group, id); err != nil {
		c.logger.Debug("ack of malformed message failed", zap.Error(err))
	}
}

// claimStaleEntries scans XPENDING for entries idle at least minIdle and,
// if claimStale is set, XCLAIMs them onto this consumer. It returns the
// number of entries claimed. Claiming is best-effort: a failed XCLAIM is
// logged and treated as zero claimed rather than fatal (§4.3).
func (c *Consumer) claimStaleEntries(ctx context.Context) (int, error) {
	pending, err := c.client.backend.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  1000,
	})
	if err != nil {
		return 0, fmt.Errorf("redismq: xpending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= c.minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 || !c.claimStale {
		return 0, nil
	}

	claimed, err := c.client.backend.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.minIdle,
		Messages: ids,
	})
	if err != nil {
		c.logger.Debug("xclaim failed", zap.Error(err))
		return 0, nil
	}
	return len(claimed), nil
}
