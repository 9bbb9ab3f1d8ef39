package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

// EventHandler receives one stored event encoded as JSON, the same payload
// the Kafka consumers see.
type EventHandler func(ctx context.Context, key, value []byte) error

// ConvertFromKinesisRecord decodes a DynamoDB change record delivered
// through Kinesis. Non-INSERT records yield (nil, nil).
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord decodes a record read straight from
// DynamoDB Streams.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	// events are append-only; MODIFY only touches snapshots
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	str := func(key string) string {
		if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
	}
	if data := str("data"); data != "" {
		event.Data = json.RawMessage(data)
	}
	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" || event.Version < 1 {
		return nil, fmt.Errorf("missing required fields: id=%q, aggregate_id=%q, event_type=%q, version=%d",
			event.ID, event.AggregateID, event.EventType, event.Version)
	}

	return event, nil
}

// Dispatch decodes every record and hands the events to handler in order.
// Records that fail are reported back so Lambda retries only those; records
// that cannot be decoded at all are logged and dropped.
func Dispatch(ctx context.Context, kinesisEvent events.KinesisEvent, handler EventHandler, logger *zap.Logger) events.KinesisEventResponse {
	var resp events.KinesisEventResponse
	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			logger.Error("dropping undecodable record", zap.String("record_id", record.EventID), zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}

		value, err := json.Marshal(event)
		if err == nil {
			err = handler(ctx, []byte(event.AggregateID), value)
		}
		if err != nil {
			logger.Warn("record failed",
				zap.String("record_id", record.EventID),
				zap.String("aggregate_id", event.AggregateID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}
	return resp
}
