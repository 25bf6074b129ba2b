// Package kinesis turns DynamoDB event-table change records, delivered
// through a Kinesis data stream, back into stored events.
package kinesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/article-cqrs/internal/infrastructure/store"
)

// ErrMalformedRecord is returned for change records that do not hold an event item
var ErrMalformedRecord = errors.New("malformed event record")

const insert = "INSERT"

// ConvertFromKinesisRecord decodes the DynamoDB change record carried in a
// Kinesis record. It returns nil for anything but an insert, since the event
// table is append-only.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return ConvertFromDynamoDBStreamRecord(change)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Streams record
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != insert {
		return nil, nil
	}
	return convertImage(record.Change.NewImage)
}

// convertImage reads an item written by store.DynamoEventStore
func convertImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: no new image", ErrMalformedRecord)
	}

	str := func(key string) string {
		v, ok := image[key]
		if !ok || v.DataType() != events.DataTypeString {
			return ""
		}
		return v.String()
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
		Data:          json.RawMessage(str("data")),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("%w: missing id, aggregate_id or event_type", ErrMalformedRecord)
	}

	if raw := str("created_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrMalformedRecord, err)
		}
		event.Timestamp = t
	}

	v, ok := image["version"]
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedRecord)
	}
	version, err := v.Integer()
	if err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrMalformedRecord, err)
	}
	event.Version = int(version)

	return event, nil
}
