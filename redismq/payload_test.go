package redismq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayload(client *Client, responseChannel *string) *Payload {
	consumer := &Consumer{
		client: client,
		stream: "s",
		group:  "g",
		name:   "c1",
		logger: client.logger,
	}
	return &Payload{
		consumer:        consumer,
		id:              "1-1",
		raw:             []byte(`"hello"`),
		responseChannel: responseChannel,
	}
}

func TestPayload_Decode(t *testing.T) {
	client := NewClientWithBackend(newMockBackend())
	p := newTestPayload(client, nil)

	var s string
	require.NoError(t, p.Decode(&s))
	assert.Equal(t, "hello", s)
}

func TestPayload_Ack_XAckBeforePublish(t *testing.T) {
	backend := newMockBackend()
	client := NewClientWithBackend(backend)
	channel := "rmq:response.1"
	p := newTestPayload(client, &channel)
	require.NoError(t, client.active(p))

	require.NoError(t, p.Ack(context.Background(), "done"))

	require.Len(t, backend.calls, 2)
	assert.Equal(t, "xack", backend.calls[0])
	assert.Equal(t, "publish", backend.calls[1])

	require.Len(t, backend.publishes, 1)
	reply, ok := backend.publishes[0].payload.(Reply)
	require.True(t, ok)
	assert.Equal(t, "done", reply.Message)
	assert.Nil(t, reply.Error)
}

func TestPayload_Nack_PublishesError(t *testing.T) {
	backend := newMockBackend()
	client := NewClientWithBackend(backend)
	channel := "rmq:response.1"
	p := newTestPayload(client, &channel)
	require.NoError(t, client.active(p))

	require.NoError(t, p.Nack(context.Background(), "boom"))

	reply, ok := backend.publishes[0].payload.(Reply)
	require.True(t, ok)
	assert.Nil(t, reply.Message)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "boom", *reply.Error)
}

func TestPayload_DoubleTerminal_Fails(t *testing.T) {
	client := NewClientWithBackend(newMockBackend())
	p := newTestPayload(client, nil)
	require.NoError(t, client.active(p))

	require.NoError(t, p.Ack(context.Background(), "ok"))
	err := p.Ack(context.Background(), "ok again")
	assert.ErrorIs(t, err, ErrAlreadyAcked)

	err = p.Nack(context.Background(), "too late")
	assert.ErrorIs(t, err, ErrAlreadyAcked)
}

func TestPayload_NoResponseChannel_SkipsPublish(t *testing.T) {
	backend := newMockBackend()
	client := NewClientWithBackend(backend)
	p := newTestPayload(client, nil)
	require.NoError(t, client.active(p))

	require.NoError(t, p.Ack(context.Background(), "ok"))
	assert.Equal(t, []string{"xack"}, backend.calls)
}
