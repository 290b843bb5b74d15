package app

import (
	"context"
	"time"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	"civic_message_service/pkg/logger"

	"go.uber.org/zap"
)

// DeliveryUseCase drives the sent -> delivered -> read machine around the
// durable store: live push on send, backlog flush on connect, read receipts
// back to the sender. Push failures are never surfaced to the sender; the
// message just stays at the lower state until the next connect.
type DeliveryUseCase struct {
	messageUC *MessageUseCase
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	presence  repository.PresenceRepository
	registry  *ConnectionRegistry

	dispatcher repository.PushDispatcher // optional
	events     repository.EventStream    // optional
}

// NewDeliveryUseCase init delivery coordinator. dispatcher and events may be
// nil when the surrounding infrastructure is absent.
func NewDeliveryUseCase(
	messageUC *MessageUseCase,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	presence repository.PresenceRepository,
	registry *ConnectionRegistry,
	dispatcher repository.PushDispatcher,
	events repository.EventStream,
) *DeliveryUseCase {
	return &DeliveryUseCase{
		messageUC:  messageUC,
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		presence:   presence,
		registry:   registry,
		dispatcher: dispatcher,
		events:     events,
	}
}

func newMessagePayload(msg *domain.Message) domain.WSResponse {
	return domain.WSResponse{
		Action:  string(domain.EventNewMessage),
		Success: true,
		Payload: map[string]interface{}{
			"message_id":      msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"body":            msg.Body,
			"seq":             msg.Seq,
			"created_at":      msg.CreatedAt.Unix(),
		},
	}
}

func (uc *DeliveryUseCase) emit(ctx context.Context, kind string, msg *domain.Message) {
	if uc.events == nil {
		return
	}
	ev := domain.MessageEvent{
		Kind:           kind,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Timestamp:      time.Now().Unix(),
	}
	if err := uc.events.Emit(ctx, ev); err != nil {
		logger.Log.Warn("lifecycle event emit failed", zap.String("kind", kind), zap.Error(err))
	}
}

// Send persist the message, then attempt live delivery to the recipient.
// An online recipient gets an immediate push followed by the DELIVERED
// transition; a failed push leaves the message at SENT with nothing partial.
// An offline recipient gets a best-effort mobile alert instead.
func (uc *DeliveryUseCase) Send(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error) {
	msg, err := uc.messageUC.Send(ctx, conversationID, senderID, body)
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, "sent", msg)

	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil || conv == nil {
		// already durable; delivery is retried on the recipient's next connect
		logger.Log.Warn("conversation reload failed after send", zap.String("message_id", msg.ID), zap.Error(err))
		return msg, nil
	}
	recipientID := conv.PeerOf(senderID)

	online, err := uc.presence.IsOnline(ctx, recipientID)
	if err != nil {
		logger.Log.Warn("presence check failed", zap.String("user_id", recipientID), zap.Error(err))
		online = false
	}

	if !online {
		if uc.dispatcher != nil {
			if err := uc.dispatcher.Notify(ctx, recipientID, msg); err != nil {
				logger.Log.Warn("push notification dispatch failed", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
		return msg, nil
	}

	if err := uc.registry.Push(recipientID, newMessagePayload(msg)); err != nil {
		// connection raced to close, stay at SENT
		logger.Log.Info("live push failed, message stays at sent",
			zap.String("message_id", msg.ID), zap.String("recipient", recipientID), zap.Error(err))
		return msg, nil
	}

	if err := uc.messageUC.MarkDelivered(ctx, msg.ID); err != nil {
		logger.Log.Warn("mark delivered failed after push", zap.String("message_id", msg.ID), zap.Error(err))
		return msg, nil
	}
	msg.State = domain.DeliveryDelivered
	uc.emit(ctx, "delivered", msg)
	return msg, nil
}

// FlushOnConnect push every message still at SENT addressed to the user
// over their now-live connection, advancing each to DELIVERED. Returns how
// many were flushed.
func (uc *DeliveryUseCase) FlushOnConnect(ctx context.Context, userID string) (int64, error) {
	msgs, err := uc.msgRepo.FindUndelivered(ctx, userID)
	if err != nil {
		return 0, err
	}

	var flushed int64
	for i := range msgs {
		msg := &msgs[i]
		if err := uc.registry.Push(userID, newMessagePayload(msg)); err != nil {
			// connection already gone again, the rest waits for next connect
			logger.Log.Info("backlog push failed", zap.String("user_id", userID), zap.Error(err))
			break
		}
		advanced, err := uc.msgRepo.AdvanceDelivered(ctx, msg.ID)
		if err != nil {
			logger.Log.Warn("backlog mark delivered failed", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if advanced {
			uc.emit(ctx, "delivered", msg)
			flushed++
		}
	}
	return flushed, nil
}

// MarkAllUndelivered the explicit client operation: bulk SENT -> DELIVERED
// for everything addressed to the user, without pushing.
func (uc *DeliveryUseCase) MarkAllUndelivered(ctx context.Context, userID string) (int64, error) {
	return uc.msgRepo.MarkAllUndelivered(ctx, userID)
}

// MarkRead single-message READ transition plus a fire-and-forget receipt to
// the sender. No receipt queue exists: an offline sender discovers the read
// state on their next fetch.
func (uc *DeliveryUseCase) MarkRead(ctx context.Context, messageID, readerID string) error {
	msg, advanced, err := uc.messageUC.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return err
	}
	// no state change means the receipt already went out once
	if !advanced {
		return nil
	}
	uc.emit(ctx, "read", msg)
	uc.pushReceipt(msg.SenderID, map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"reader_id":       readerID,
		"read_at":         time.Now().Unix(),
	})
	return nil
}

// MarkAllRead bulk READ transition plus one aggregate receipt to the peer
func (uc *DeliveryUseCase) MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	count, err := uc.messageUC.MarkAllRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil || conv == nil {
		return count, nil
	}
	uc.pushReceipt(conv.PeerOf(readerID), map[string]interface{}{
		"conversation_id": conversationID,
		"reader_id":       readerID,
		"count":           count,
		"read_at":         time.Now().Unix(),
	})
	return count, nil
}

func (uc *DeliveryUseCase) pushReceipt(senderID string, payload map[string]interface{}) {
	err := uc.registry.Push(senderID, domain.WSResponse{
		Action:  string(domain.EventReadReceipt),
		Success: true,
		Payload: payload,
	})
	if err != nil && err != ErrNotConnected {
		logger.Log.Info("read receipt push failed", zap.String("sender_id", senderID), zap.Error(err))
	}
}
