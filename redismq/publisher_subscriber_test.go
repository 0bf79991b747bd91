package redismq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherSubscriber_FanOut(t *testing.T) {
	client, _ := newTestClient(t)

	sub, err := NewSubscriber(client, []string{"notices"})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	// Give the subscription a moment to register with the backing store
	// before anything is published, matching the teacher's miniredis test
	// convention of a short settle delay around SUBSCRIBE/PUBLISH races.
	time.Sleep(20 * time.Millisecond)

	pub := NewPublisher(client, []string{"notices"}, WithNumSubCheck(false))
	require.NoError(t, pub.Publish(context.Background(), map[string]string{"kind": "deploy"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := sub.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notices", payload.Channel())

	var msg map[string]string
	require.NoError(t, payload.Decode(&msg))
	assert.Equal(t, "deploy", msg["kind"])

	require.NoError(t, payload.Ack())
	err = payload.Ack()
	assert.ErrorIs(t, err, ErrAlreadyAcked)
}

// TestPublisher_NumSubCheck_SkipsChannelsWithNoSubscribers exercises the
// PUBSUB NUMSUB optimisation: a channel nobody subscribed to is dropped
// from the publish set instead of erroring.
func TestPublisher_NumSubCheck_SkipsChannelsWithNoSubscribers(t *testing.T) {
	client, _ := newTestClient(t)

	sub, err := NewSubscriber(client, []string{"subscribed-only"})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	time.Sleep(20 * time.Millisecond)

	pub := NewPublisher(client, []string{"subscribed-only", "nobody-home"})
	require.NoError(t, pub.Publish(context.Background(), "ping"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := sub.Read(ctx)
	require.NoError(t, err)

	var s string
	require.NoError(t, payload.Decode(&s))
	assert.Equal(t, "ping", s)
}

func TestSubscriber_Close_UnblocksRead(t *testing.T) {
	client, _ := newTestClient(t)

	sub, err := NewSubscriber(client, []string{"shutdown-channel"})
	require.NoError(t, err)

	require.NoError(t, sub.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = sub.Read(ctx)
	assert.ErrorIs(t, err, ErrSubscriberClosed)
}
