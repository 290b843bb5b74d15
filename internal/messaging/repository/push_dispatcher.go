package repository

import (
	"context"
	"encoding/json"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/pkg/database"

	"github.com/streadway/amqp"
)

// PushDispatcher is invoked when a message lands for an offline recipient so
// the surrounding platform can raise an out-of-band mobile alert. Strictly
// best-effort: a dispatch failure must never fail the send.
type PushDispatcher interface {
	Notify(ctx context.Context, recipientID string, msg *domain.Message) error
}

type amqpPushDispatcher struct {
	rabbit   database.RabbitRepo
	exchange string
}

// NewAMQPPushDispatcher publish offline-message alerts to the notifications
// exchange
func NewAMQPPushDispatcher(rabbit database.RabbitRepo, exchange string) PushDispatcher {
	return &amqpPushDispatcher{rabbit: rabbit, exchange: exchange}
}

type pushAlert struct {
	RecipientID    string `json:"recipient_id"`
	SenderID       string `json:"sender_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SentAt         int64  `json:"sent_at"`
}

func (d *amqpPushDispatcher) Notify(_ context.Context, recipientID string, msg *domain.Message) error {
	body, err := json.Marshal(pushAlert{
		RecipientID:    recipientID,
		SenderID:       msg.SenderID,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SentAt:         msg.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}

	return d.rabbit.Publish(d.exchange, "message.offline", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
