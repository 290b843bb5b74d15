package repository

import (
	"context"
	"encoding/json"

	"civic_message_service/internal/messaging/domain"

	"github.com/segmentio/kafka-go"
)

// EventStream receives message lifecycle events (sent/delivered/read) for
// the platform's analytics pipeline. Emission is best-effort and never on
// the durable path.
type EventStream interface {
	Emit(ctx context.Context, ev domain.MessageEvent) error
}

type kafkaEventStream struct {
	writer *kafka.Writer
}

// NewKafkaEventStream emit lifecycle events to the configured topic
func NewKafkaEventStream(writer *kafka.Writer) EventStream {
	return &kafkaEventStream{writer: writer}
}

func (s *kafkaEventStream) Emit(ctx context.Context, ev domain.MessageEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: value,
	})
}
