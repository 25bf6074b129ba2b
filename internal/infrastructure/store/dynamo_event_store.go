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
)

// allEventsPK is the fixed GSI1 partition holding every event, sorted by created_at
const allEventsPK = "EVENTS"

// DynamoAPI is the subset of *dynamodb.Client used by the DynamoDB stores
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoEventStore stores events in DynamoDB, keyed by (aggregate_id, version)
type DynamoEventStore struct {
	client    DynamoAPI
	tableName string
}

// dynamoEvent represents the DynamoDB item structure
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

func NewDynamoEventStore(client DynamoAPI, tableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:    client,
		tableName: tableName,
	}
}

// Append writes the batch in one transaction. Each item is conditional on its
// (aggregate_id, version) slot being free, so a racing writer cancels the transaction.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID string, expectedVersion int, events []Event) error {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	head, err := es.headVersion(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("failed to read stream head: %w", err)
	}
	if head != expectedVersion {
		return conflictError(aggregateID, expectedVersion, head)
	}

	items := make([]types.TransactWriteItem, 0, len(events))
	for _, e := range events {
		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID:   e.AggregateID,
			Version:       e.Version,
			ID:            e.ID,
			AggregateType: e.AggregateType,
			EventType:     e.EventType,
			Data:          string(e.Data),
			CreatedAt:     e.Timestamp.UTC().Format(time.RFC3339Nano),
			GSI1PK:        allEventsPK,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) && conditionFailed(canceled) {
		return conflictError(aggregateID, expectedVersion, events[0].Version)
	}
	if err != nil {
		return fmt.Errorf("failed to put events: %w", err)
	}
	return nil
}

// conditionFailed reports whether a put was cancelled because its version
// already exists. Throttling and conflicting transactions cancel for other reasons.
func conditionFailed(e *types.TransactionCanceledException) bool {
	for _, reason := range e.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// headVersion returns the highest stored version, -1 for an empty stream
func (es *DynamoEventStore) headVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Descending order
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}

	if len(result.Items) == 0 {
		return -1, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version, nil
}

// ReadFrom returns events of an aggregate after the given version
func (es *DynamoEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(afterVersion)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
		ConsistentRead:   aws.Bool(true),
	})
}

// ReadAll returns all events using GSI1
func (es *DynamoEventStore) ReadAll(ctx context.Context) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsPK},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by created_at
	})
}

func (es *DynamoEventStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		batch, err := unmarshalEvents(page.Items)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	return events, nil
}

// unmarshalEvents converts DynamoDB items to Event slice
func unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("event %s has invalid created_at: %w", de.ID, err)
		}

		events = append(events, Event{
			ID:            de.ID,
			AggregateID:   de.AggregateID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			Data:          json.RawMessage(de.Data),
			Timestamp:     timestamp,
			Version:       de.Version,
		})
	}

	return events, nil
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots
// Stored in a separate snapshots table with aggregate_id as partition key
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// DynamoSnapshotStore keeps the latest snapshot per aggregate in its own table
type DynamoSnapshotStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoSnapshotStore(client DynamoAPI, tableName string) *DynamoSnapshotStore {
	return &DynamoSnapshotStore{client: client, tableName: tableName}
}

// Write stores the snapshot unless a newer one is already there
func (s *DynamoSnapshotStore) Write(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) OR version < :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(snapshot.Version)},
		},
	})
	var stale *types.ConditionalCheckFailedException
	if errors.As(err, &stale) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// ReadLatest retrieves the snapshot for an aggregate
func (s *DynamoSnapshotStore) ReadLatest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
