package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// allEventsIndex is the GSI holding every event under one partition,
	// sorted by created_at, for read-model rebuilds.
	allEventsIndex     = "GSI1"
	allEventsPartition = "EVENTS"
)

// DynamoAPI is the subset of the DynamoDB client the event store uses.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoEventStore keeps order streams in DynamoDB, keyed by
// (aggregate_id, version). Projections are fed from the table's stream
// through Kinesis, so the store itself publishes nothing.
type DynamoEventStore struct {
	client         DynamoAPI
	eventsTable    string
	snapshotsTable string
	now            func() time.Time
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func (d dynamoEvent) event() Event {
	ts, _ := time.Parse(time.RFC3339Nano, d.CreatedAt)
	return Event{
		ID:            d.ID,
		AggregateID:   d.AggregateID,
		AggregateType: d.AggregateType,
		EventType:     d.EventType,
		Data:          json.RawMessage(d.Data),
		Timestamp:     ts,
		Version:       d.Version,
	}
}

func NewDynamoEventStore(client DynamoAPI, eventsTable, snapshotsTable string) *DynamoEventStore {
	return &DynamoEventStore{
		client:         client,
		eventsTable:    eventsTable,
		snapshotsTable: snapshotsTable,
		now:            time.Now,
	}
}

// Append writes the event at expectedVersion+1. The put is conditional on
// the key being free, so a concurrent writer at the same version loses with
// ErrVersionConflict.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	row := dynamoEvent{
		AggregateID:   aggregateID,
		Version:       expectedVersion + 1,
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          string(payload),
		CreatedAt:     es.now().UTC().Format(time.RFC3339Nano),
		GSI1PK:        allEventsPartition,
	}
	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return nil, fmt.Errorf("marshal event item: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.eventsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
	})
	var condErr *types.ConditionalCheckFailedException
	switch {
	case errors.As(err, &condErr):
		return nil, ErrVersionConflict
	case err != nil:
		return nil, fmt.Errorf("put event %s v%d: %w", aggregateID, row.Version, err)
	}

	event := row.event()
	return &event, nil
}

func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

// GetEventsFromVersion returns the events of one stream after fromVersion,
// oldest first.
func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.eventsTable),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
}

// GetAllEvents reads every event through the GSI in creation order.
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.eventsTable),
		IndexName:              aws.String(allEventsIndex),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsPartition},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// query follows LastEvaluatedKey until the result set is exhausted.
func (es *DynamoEventStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var out []Event
	pages := dynamodb.NewQueryPaginator(es.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", es.eventsTable, err)
		}
		var rows []dynamoEvent
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
		for _, row := range rows {
			out = append(out, row.event())
		}
	}
	return out, nil
}

type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot replaces the stored snapshot unless a newer one is already
// there. Losing that race is not an error.
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot item: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.snapshotsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) OR version < :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(snapshot.Version)},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &condErr) {
		return fmt.Errorf("put snapshot %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

// GetSnapshot returns nil, nil when the aggregate has never been snapshotted.
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	out, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotsTable),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", aggregateID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var row dynamoSnapshot
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	return &Snapshot{
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		Version:       row.Version,
		State:         json.RawMessage(row.State),
		CreatedAt:     createdAt,
	}, nil
}
