package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

const (
	HeaderEventType     = "event-type"
	HeaderAggregateType = "aggregate-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer is the store.Publisher backed by Kafka. Messages are keyed by
// order id, so one order's events stay on one partition in append order.
type Producer struct {
	writer messageWriter
	now    func() time.Time
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
		now: time.Now,
	}
}

// Publish writes event as JSON. Stored events also carry their type in
// headers and keep their own timestamp.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", key, err)
	}

	msg := kafka.Message{Key: []byte(key), Value: value, Time: p.now()}
	if e, ok := asStoredEvent(event); ok {
		msg.Time = e.Timestamp
		msg.Headers = []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
		}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", key, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func asStoredEvent(v any) (store.Event, bool) {
	switch e := v.(type) {
	case store.Event:
		return e, true
	case *store.Event:
		if e != nil {
			return *e, true
		}
	}
	return store.Event{}, false
}
