package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/ordenes-stock/internal/order"
)

type fakeProducer struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (p *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func sampleEvent() order.Event {
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	o := order.New("o-1", "ORD-20240115-ABCD1234", order.Customer{Email: "ana@example.com"}, at)
	o.Total = decimal.RequireFromString("71800")
	return order.NewEvent(order.EventPlaced, o, at)
}

func TestPublishWritesKeyedJSON(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaPublisher(fp, nil)

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	require.Len(t, fp.msgs, 1)

	msg := fp.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.placed", string(msg.Headers[0].Value))

	var got order.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, order.EventPlaced, got.Type)
	assert.Equal(t, "ORD-20240115-ABCD1234", got.OrderNumber)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, "71800.00", got.Total)
}

func TestPublishWrapsProducerError(t *testing.T) {
	boom := errors.New("leader not available")
	pub := NewKafkaPublisher(&fakeProducer{err: boom}, nil)

	err := pub.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ORD-20240115-ABCD1234")
}

func TestCloseClosesProducer(t *testing.T) {
	fp := &fakeProducer{}
	require.NoError(t, NewKafkaPublisher(fp, nil).Close())
	assert.True(t, fp.closed)
}
