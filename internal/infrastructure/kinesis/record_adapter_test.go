package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventImage(id string, version string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute("7a0e4f5c-1d2b-4c3a-9e8f-0a1b2c3d4e5f"),
		"aggregate_type": events.NewStringAttribute("Article"),
		"event_type":     events.NewStringAttribute("ArticlePublished"),
		"data":           events.NewStringAttribute(`{"article_id":"7a0e4f5c-1d2b-4c3a-9e8f-0a1b2c3d4e5f"}`),
		"created_at":     events.NewStringAttribute("2024-01-15T10:30:00.123456789Z"),
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

// ============================================
// Record Conversion Tests
// ============================================

func TestConvertImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{name: "valid event", image: eventImage("event-123", "4")},
		{name: "nil image", image: nil, wantErr: true},
		{
			name:    "missing required fields",
			image:   map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("event-123")},
			wantErr: true,
		},
		{
			name: "bad timestamp",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := eventImage("event-123", "1")
				img["created_at"] = events.NewStringAttribute("yesterday")
				return img
			}(),
			wantErr: true,
		},
		{
			name: "missing version",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := eventImage("event-123", "1")
				delete(img, "version")
				return img
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := convertImage(tt.image)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRecord)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "event-123", event.ID)
			assert.Equal(t, "Article", event.AggregateType)
			assert.Equal(t, "ArticlePublished", event.EventType)
			assert.Equal(t, 4, event.Version)
			assert.Equal(t, 123456789, event.Timestamp.Nanosecond())
			assert.JSONEq(t, `{"article_id":"7a0e4f5c-1d2b-4c3a-9e8f-0a1b2c3d4e5f"}`, string(event.Data))
		})
	}
}

func TestConvertFromDynamoDBStreamRecord_IgnoresNonInserts(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		event, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{
			EventName: name,
			Change:    events.DynamoDBStreamRecord{NewImage: eventImage("e", "0")},
		})
		require.NoError(t, err)
		assert.Nil(t, event, name)
	}
}

func TestConvertFromKinesisRecord(t *testing.T) {
	event, err := ConvertFromKinesisRecord(kinesisRecord(t, "1", "INSERT", eventImage("event-9", "0")))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "event-9", event.ID)

	_, err = ConvertFromKinesisRecord(events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("{")}})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

// ============================================
// Handler Tests
// ============================================

type recordingDispatcher struct {
	seen   []string
	failOn string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg eventbus.Message) error {
	if msg.Event.ID == d.failOn {
		return errors.New("read model unavailable")
	}
	d.seen = append(d.seen, msg.Event.ID)
	return nil
}

func TestHandler_ProcessesBatchInOrder(t *testing.T) {
	d := &recordingDispatcher{}
	handler := NewHandler(d, zerolog.Nop())

	resp, err := handler.Handle(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", eventImage("a", "0")),
		kinesisRecord(t, "2", "MODIFY", eventImage("b", "1")),
		kinesisRecord(t, "3", "INSERT", eventImage("c", "1")),
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{"a", "c"}, d.seen)
}

func TestHandler_StopsAtFirstFailure(t *testing.T) {
	d := &recordingDispatcher{failOn: "b"}
	handler := NewHandler(d, zerolog.Nop())

	resp, err := handler.Handle(context.Background(), events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", eventImage("a", "0")),
		kinesisRecord(t, "2", "INSERT", eventImage("b", "1")),
		kinesisRecord(t, "3", "INSERT", eventImage("c", "2")),
	}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "2", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, []string{"a"}, d.seen)
}
