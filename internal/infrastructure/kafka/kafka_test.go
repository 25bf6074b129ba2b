package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then io.EOF
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type dispatcherFunc func(ctx context.Context, msg eventbus.Message) error

func (f dispatcherFunc) Dispatch(ctx context.Context, msg eventbus.Message) error { return f(ctx, msg) }

func makeStoredEvent(version int) store.Event {
	return store.Event{
		ID:            "evt-" + string(rune('a'+version)),
		AggregateID:   "0b9d7f38-4a8e-4c39-9f43-2f1f3f1d9e01",
		AggregateType: "Article",
		EventType:     "ArticlePublished",
		Data:          []byte(`{"article_id":"0b9d7f38-4a8e-4c39-9f43-2f1f3f1d9e01"}`),
		Timestamp:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:       version,
	}
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_ForwardsEnvelopeKeyedByAggregate(t *testing.T) {
	w := &fakeWriter{}
	producer := NewProducerWithWriter(w, zerolog.Nop())
	event := makeStoredEvent(3)

	require.NoError(t, producer.Handle(context.Background(), eventbus.Message{Event: event, Payload: struct{}{}}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, event.AggregateID, string(msg.Key))
	assert.Equal(t, event.Timestamp, msg.Time)

	var decoded store.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, 3, decoded.Version)
	assert.JSONEq(t, string(event.Data), string(decoded.Data))
	assert.Equal(t, ForwarderName, producer.Name())
}

func TestProducer_SurfacesWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	producer := NewProducerWithWriter(w, zerolog.Nop())

	err := producer.Handle(context.Background(), eventbus.Message{Event: makeStoredEvent(0)})
	assert.Error(t, err)
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	var queue []kafka.Message
	for v := 0; v < 3; v++ {
		data, err := json.Marshal(makeStoredEvent(v))
		require.NoError(t, err)
		queue = append(queue, kafka.Message{Value: data, Offset: int64(v)})
	}
	r := &fakeReader{queue: queue}
	consumer := NewConsumerWithReader(r, zerolog.Nop())

	var got []int
	handler := DispatchTo(dispatcherFunc(func(_ context.Context, msg eventbus.Message) error {
		assert.Nil(t, msg.Payload)
		got = append(got, msg.Event.Version)
		return nil
	}))

	require.NoError(t, consumer.Consume(context.Background(), handler))
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, []int64{0, 1, 2}, r.committed)
}

var errPoison = errors.New("cannot ever project")

func isTestPoison(err error) bool { return errors.Is(err, errPoison) }

func TestConsumer_CommitsPoisonMessages(t *testing.T) {
	good, err := json.Marshal(makeStoredEvent(1))
	require.NoError(t, err)
	r := &fakeReader{queue: []kafka.Message{
		{Value: []byte("not json"), Offset: 10},
		{Value: good, Offset: 11},
		{Value: good, Offset: 12},
	}}
	consumer := NewConsumerWithReader(r, zerolog.Nop(), WithPoison(isTestPoison))

	var calls int
	err = consumer.Consume(context.Background(), func(context.Context, store.Event) error {
		calls++
		return fmt.Errorf("dispatch: %w", errPoison)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{10, 11, 12}, r.committed)
}

func TestConsumer_HandlerFailureStopsWithoutCommit(t *testing.T) {
	var queue []kafka.Message
	for v := 0; v < 3; v++ {
		data, err := json.Marshal(makeStoredEvent(v))
		require.NoError(t, err)
		queue = append(queue, kafka.Message{Value: data, Offset: int64(20 + v)})
	}
	r := &fakeReader{queue: queue}
	consumer := NewConsumerWithReader(r, zerolog.Nop(), WithPoison(isTestPoison))

	dbDown := errors.New("read store unavailable")
	var handled []int
	err := consumer.Consume(context.Background(), func(_ context.Context, event store.Event) error {
		handled = append(handled, event.Version)
		if event.Version == 1 {
			return dbDown
		}
		return nil
	})

	require.ErrorIs(t, err, dbDown)
	assert.Contains(t, err.Error(), "offset 21")
	assert.Equal(t, []int{0, 1}, handled, "nothing after the failed message is fetched")
	assert.Equal(t, []int64{20}, r.committed)
	assert.Len(t, r.queue, 1)
}

func TestConsumer_FailuresAreTransientByDefault(t *testing.T) {
	good, err := json.Marshal(makeStoredEvent(1))
	require.NoError(t, err)
	r := &fakeReader{queue: []kafka.Message{{Value: good, Offset: 30}}}
	consumer := NewConsumerWithReader(r, zerolog.Nop())

	err = consumer.Consume(context.Background(), func(context.Context, store.Event) error {
		return errPoison
	})

	assert.ErrorIs(t, err, errPoison)
	assert.Empty(t, r.committed)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer := NewConsumerWithReader(&fakeReader{}, zerolog.Nop())

	err := consumer.Consume(ctx, func(context.Context, store.Event) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatchTo_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	handler := DispatchTo(dispatcherFunc(func(context.Context, eventbus.Message) error { return boom }))

	err := handler(context.Background(), makeStoredEvent(4))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ArticlePublished v4")
}
