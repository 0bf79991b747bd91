package redismq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqlog"
)

// Producer is bound to exactly one stream for its lifetime (§3) and is
// cached in its owning Client's registry by stream name.
type Producer struct {
	client     *Client
	stream     string
	channelKey string
	maxlen     int64
	timeout    time.Duration
	logger     *zap.Logger
}

// AddUnconfirmedMessage JSON-encodes message, builds the wire record
// (optionally carrying responseChannel), and XADDs it with an approximate
// MAXLEN bound. It returns the assigned message id. Backing-store errors
// propagate verbatim (§7 TransportError).
func (p *Producer) AddUnconfirmedMessage(ctx context.Context, message any, responseChannel string) (string, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("redismq: encode message: %w", err)
	}

	fields := map[string]interface{}{"message": string(data)}
	if responseChannel != "" {
		fields["response_channel"] = responseChannel
	}

	p.logger.Debug("addUnconfirmedMessage", zap.String("stream", p.stream))

	id, err := p.client.backend.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxlen,
		Approx: true,
		Values: fields,
	})
	if err != nil {
		return "", fmt.Errorf("redismq: xadd: %w", err)
	}
	return id, nil
}

// AddConfirmedMessage allocates a unique reply-channel id, subscribes to
// it *before* the XADD (§5 ordering invariant 2 — otherwise a fast
// consumer's reply could be published before anyone is listening), and
// waits for the first message published there.
//
// Every exit path unsubscribes the reply channel before returning (§4.2,
// §8 invariant 4). Timeout and cancellation are absorbed into a normal
// *Reply value rather than returned as an error (§7, §9(a)): callers
// inspect Reply.Message/Error uniformly regardless of why the call
// resolved.
func (p *Producer) AddConfirmedMessage(ctx context.Context, message any) (*Reply, error) {
	uid, err := p.client.backend.Incr(ctx, p.channelKey)
	if err != nil {
		if ctx.Err() != nil {
			return errReply("Cancelled Error", ctx.Err().Error()), nil
		}
		return nil, fmt.Errorf("redismq: allocate reply channel: %w", err)
	}
	channel := fmt.Sprintf("%s:response.%d", p.client.namespace, uid)
	p.logger.Debug("addConfirmedMessage: allocated reply channel", zap.String(mqlog.FieldChannel, channel))

	sub := p.client.backend.Subscribe(ctx, channel)
	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		bg := context.Background()
		_ = sub.Unsubscribe(bg, channel)
		_ = sub.Close()
	}
	defer cleanup()

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("redismq: encode message: %w", err)
	}

	fields := map[string]interface{}{
		"message":          string(data),
		"response_channel": channel,
	}

	if _, err := p.client.backend.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxlen,
		Approx: true,
		Values: fields,
	}); err != nil {
		if ctx.Err() != nil {
			return errReply("Cancelled Error", ctx.Err().Error()), nil
		}
		return nil, fmt.Errorf("redismq: xadd: %w", err)
	}

	msgCh := sub.Channel()
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-msgCh:
		if !ok {
			return errReply("Cancelled Error", "reply channel closed"), nil
		}
		var reply Reply
		if err := json.Unmarshal([]byte(msg.Payload), &reply); err != nil {
			return errReply("JSON Decoding Error", err.Error()), nil
		}
		return &reply, nil

	case <-timer.C:
		return errReply("Timeout Error", fmt.Sprintf("no reply within %s", p.timeout)), nil

	case <-ctx.Done():
		return errReply("Cancelled Error", ctx.Err().Error()), nil
	}
}
