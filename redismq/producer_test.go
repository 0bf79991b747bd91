package redismq

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	client := NewClientWithBackend(NewRedisBackend(rc), WithNamespace("rmq"))
	return client, rc
}

func TestProducer_AddUnconfirmedMessage(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("orders")
	require.NoError(t, err)

	id, err := producer.AddUnconfirmedMessage(context.Background(), map[string]any{"sku": "abc"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

// TestProducer_AddConfirmedMessage_SendAndReply exercises the happy path of
// the confirmed-request protocol end to end: a simulated consumer reads the
// XADDed entry, decodes the response_channel field, and publishes a Reply,
// which AddConfirmedMessage must receive.
func TestProducer_AddConfirmedMessage_SendAndReply(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("fib.requests", WithConfirmTimeout(2*time.Second))
	require.NoError(t, err)

	consumer, err := client.Consumer(context.Background(), "fib.requests", "workers", "w1")
	require.NoError(t, err)

	go func() {
		payload, err := consumer.Read(context.Background())
		if err != nil {
			return
		}
		var n int
		_ = payload.Decode(&n)
		_ = payload.Ack(context.Background(), n*2)
	}()

	reply, err := producer.AddConfirmedMessage(context.Background(), 21)
	require.NoError(t, err)
	require.Nil(t, reply.Error)
	assert.EqualValues(t, 42, reply.Message)
}

func TestProducer_AddConfirmedMessage_Timeout(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("nobody.listens", WithConfirmTimeout(30*time.Millisecond))
	require.NoError(t, err)

	reply, err := producer.AddConfirmedMessage(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "Timeout Error", reply.Message)
	require.NotNil(t, reply.Error)
}

func TestProducer_AddConfirmedMessage_Cancellation(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("cancel.me", WithConfirmTimeout(5*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := producer.AddConfirmedMessage(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled Error", reply.Message)
}

// TestProducer_AddConfirmedMessage_BadJSONReply covers §7's JSON Decoding
// Error path: a reply published on the channel that isn't a valid Reply
// object surfaces as a normal reply value, not a returned error.
func TestProducer_AddConfirmedMessage_BadJSONReply(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("bad.reply", WithConfirmTimeout(2*time.Second))
	require.NoError(t, err)

	consumer, err := client.Consumer(context.Background(), "bad.reply", "workers", "w1")
	require.NoError(t, err)

	go func() {
		payload, err := consumer.Read(context.Background())
		if err != nil {
			return
		}
		_ = payload.consumer.client.backend.Publish(context.Background(), *payload.responseChannel, "not-a-reply-object")
		_ = payload.Ack(context.Background(), nil)
	}()

	reply, err := producer.AddConfirmedMessage(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "JSON Decoding Error", reply.Message)
}

func TestProducer_AddConfirmedMessage_Concurrent(t *testing.T) {
	client, _ := newTestClient(t)
	producer, err := client.Producer("concurrent.fib", WithConfirmTimeout(2*time.Second))
	require.NoError(t, err)

	consumer, err := client.Consumer(context.Background(), "concurrent.fib", "workers", "w1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			payload, err := consumer.Read(ctx)
			if err != nil {
				return
			}
			var n int
			_ = payload.Decode(&n)
			_ = payload.Ack(context.Background(), n+1)
		}
	}()

	const n = 20
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(v int) {
			reply, err := producer.AddConfirmedMessage(context.Background(), v)
			if err != nil || reply.Error != nil {
				results <- -1
				return
			}
			f, _ := reply.Message.(float64)
			results <- int(f)
		}(i)
	}

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-results:
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent replies")
		}
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing reply for input %d", i-1)
	}
}
