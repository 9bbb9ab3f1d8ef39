package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

func orderImage(id string, version string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute("event-" + id + "-" + version),
		"aggregate_id":   events.NewStringAttribute(id),
		"aggregate_type": events.NewStringAttribute("Order"),
		"event_type":     events.NewStringAttribute("OrderStatusChanged"),
		"data":           events.NewStringAttribute(`{"order_id":"` + id + `","to":"SHIPPED"}`),
		"created_at":     events.NewStringAttribute("2026-10-17T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute(version),
	}
}

func kinesisRecord(t *testing.T, seq, eventName string, image map[string]events.DynamoDBAttributeValue) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(events.DynamoDBEventRecord{
		EventName: eventName,
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	})
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shard-0:" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

func TestConvertDynamoDBImage(t *testing.T) {
	event, err := convertDynamoDBImage(orderImage("order-1", "4"))

	require.NoError(t, err)
	assert.Equal(t, "order-1", event.AggregateID)
	assert.Equal(t, "Order", event.AggregateType)
	assert.Equal(t, 4, event.Version)
	assert.JSONEq(t, `{"order_id":"order-1","to":"SHIPPED"}`, string(event.Data))
	assert.Equal(t, time.Date(2026, 10, 17, 10, 30, 0, 123456789, time.UTC), event.Timestamp)
}

func TestConvertDynamoDBImage_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]events.DynamoDBAttributeValue)
	}{
		{"missing id", func(m map[string]events.DynamoDBAttributeValue) { delete(m, "id") }},
		{"missing version", func(m map[string]events.DynamoDBAttributeValue) { delete(m, "version") }},
		{"bad timestamp", func(m map[string]events.DynamoDBAttributeValue) { m["created_at"] = events.NewStringAttribute("yesterday") }},
		{"bad version", func(m map[string]events.DynamoDBAttributeValue) { m["version"] = events.NewNumberAttribute("1.5") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := orderImage("order-1", "1")
			tt.mutate(image)
			_, err := convertDynamoDBImage(image)
			assert.Error(t, err)
		})
	}

	_, err := convertDynamoDBImage(nil)
	assert.Error(t, err)
}

func TestConvertFromDynamoDBStreamRecord_SkipsNonInsert(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		event, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{
			EventName: name,
			Change:    events.DynamoDBStreamRecord{NewImage: orderImage("order-1", "1")},
		})
		assert.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestConvertFromKinesisRecord_BadPayload(t *testing.T) {
	_, err := ConvertFromKinesisRecord(events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("not json")}})
	assert.Error(t, err)
}

func TestDispatch(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", orderImage("order-1", "1")),
		kinesisRecord(t, "2", "MODIFY", orderImage("order-1", "1")),
		kinesisRecord(t, "3", "INSERT", orderImage("order-2", "1")),
		{EventID: "shard-0:4", Kinesis: events.KinesisRecord{Data: []byte("{"), SequenceNumber: "4"}},
		kinesisRecord(t, "5", "INSERT", orderImage("order-1", "2")),
	}}

	var seen []string
	handler := func(_ context.Context, key, value []byte) error {
		var event store.Event
		require.NoError(t, json.Unmarshal(value, &event))
		seen = append(seen, event.ID)
		if string(key) == "order-2" {
			return errors.New("read store unavailable")
		}
		return nil
	}

	resp := Dispatch(context.Background(), batch, handler, zap.NewNop())

	assert.Equal(t, []string{"event-order-1-1", "event-order-2-1", "event-order-1-2"}, seen)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "3", resp.BatchItemFailures[0].ItemIdentifier)
}
