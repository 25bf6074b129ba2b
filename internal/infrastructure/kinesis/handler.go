package kinesis

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/rs/zerolog"
)

// Dispatcher delivers one message to every subscribed listener
type Dispatcher interface {
	Dispatch(ctx context.Context, msg eventbus.Message) error
}

// Handler feeds a Kinesis batch to a dispatcher in stream order.
type Handler struct {
	dispatcher Dispatcher
	log        zerolog.Logger
}

func NewHandler(d Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		log:        log.With().Str("component", "kinesis_handler").Logger(),
	}
}

// Handle processes records until the first failure and reports that record
// as the batch item failure. Lambda then retries the batch from there, so
// later events of the same shard are never applied ahead of an earlier one.
// Records that can never be decoded are logged and skipped.
func (h *Handler) Handle(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	var resp events.KinesisEventResponse
	var processed int

	for _, record := range batch.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			h.log.Error().Err(err).Str("record_id", record.EventID).Msg("skipping malformed record")
			continue
		}
		if event == nil {
			continue
		}

		if err := h.dispatcher.Dispatch(ctx, eventbus.Message{Event: *event}); err != nil {
			h.log.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.EventType).
				Str("sequence_number", record.Kinesis.SequenceNumber).
				Msg("failed to process event")
			resp.BatchItemFailures = []events.KinesisBatchItemFailure{
				{ItemIdentifier: record.Kinesis.SequenceNumber},
			}
			break
		}
		processed++
	}

	h.log.Info().
		Int("records", len(batch.Records)).
		Int("processed", processed).
		Int("failed", len(resp.BatchItemFailures)).
		Msg("batch handled")
	return resp, nil
}
