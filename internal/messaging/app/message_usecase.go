package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	errprocess "civic_message_service/pkg/err"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageUseCase owns message records and the delivery-state machine.
// Pagination is newest-first.
type MessageUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository

	maxBodyLength int
}

// NewMessageUseCase init message use case, maxBodyLength <= 0 uses the default
func NewMessageUseCase(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, maxBodyLength int) *MessageUseCase {
	if maxBodyLength <= 0 {
		maxBodyLength = domain.DefaultMaxMessageLength
	}
	return &MessageUseCase{
		convRepo:      convRepo,
		msgRepo:       msgRepo,
		maxBodyLength: maxBodyLength,
	}
}

func (uc *MessageUseCase) validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errprocess.InvalidArgument("message body is blank")
	}
	if utf8.RuneCountInString(body) > uc.maxBodyLength {
		return errprocess.InvalidArgument("message body exceeds maximum length")
	}
	return nil
}

// requireConversation load + participant check
func (uc *MessageUseCase) requireConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, errprocess.Internal("conversation lookup failed", err)
	}
	if conv == nil {
		return nil, errprocess.NotFound("conversation not found")
	}
	if !conv.HasParticipant(userID) {
		return nil, errprocess.NotAuthorized("not a participant of this conversation")
	}
	return conv, nil
}

// requireVisibleConversation like requireConversation, but a conversation
// the requester soft-deleted reads as missing. Send stays on the plain
// check so the pair identity keeps working after a one-sided delete.
func (uc *MessageUseCase) requireVisibleConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := uc.requireConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv.DeletedFor(userID) {
		return nil, errprocess.NotFound("conversation not found")
	}
	return conv, nil
}

// Send validate, then persist at SENT together with the conversation's
// last-message bump. Once this returns the message survives any failure of
// the delivery path.
func (uc *MessageUseCase) Send(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error) {
	if err := uc.validateBody(body); err != nil {
		return nil, err
	}
	if _, err := uc.requireConversation(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		State:          domain.DeliverySent,
		CreatedAt:      time.Now(),
	}
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return nil, errprocess.Internal("message persist failed", err)
	}
	return msg, nil
}

// Page non-deleted messages of the conversation, newest first
func (uc *MessageUseCase) Page(ctx context.Context, conversationID, requesterID string, pageIndex, pageSize int) ([]domain.Message, error) {
	if _, err := uc.requireVisibleConversation(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	msgs, err := uc.msgRepo.Page(ctx, conversationID, pageIndex, pageSize)
	if err != nil {
		return nil, errprocess.Internal("message page failed", err)
	}
	return msgs, nil
}

// MarkDelivered SENT -> DELIVERED, idempotent no-op past that state
func (uc *MessageUseCase) MarkDelivered(ctx context.Context, messageID string) error {
	advanced, err := uc.msgRepo.AdvanceDelivered(ctx, messageID)
	if err != nil {
		return errprocess.Internal("mark delivered failed", err)
	}
	if advanced {
		return nil
	}
	// no row moved: either already past SENT (fine) or missing
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return errprocess.Internal("message lookup failed", err)
	}
	if msg == nil {
		return errprocess.NotFound("message not found")
	}
	return nil
}

// MarkRead transition to READ when the reader is the recipient. A sender
// marking their own message is a no-op; a non-participant is rejected. The
// bool reports whether the state actually moved, so re-marks an already-read
// message stay silent on the receipt path.
func (uc *MessageUseCase) MarkRead(ctx context.Context, messageID, readerID string) (*domain.Message, bool, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, false, errprocess.Internal("message lookup failed", err)
	}
	if msg == nil || msg.Deleted {
		return nil, false, errprocess.NotFound("message not found")
	}
	if _, err := uc.requireVisibleConversation(ctx, msg.ConversationID, readerID); err != nil {
		return nil, false, err
	}
	if msg.SenderID == readerID {
		return msg, false, nil
	}
	advanced, err := uc.msgRepo.AdvanceRead(ctx, messageID, readerID)
	if err != nil {
		return nil, false, errprocess.Internal("mark read failed", err)
	}
	return msg, advanced, nil
}

// MarkAllRead bulk READ transition for everything addressed to the reader
// in the conversation, returns the affected count
func (uc *MessageUseCase) MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if _, err := uc.requireVisibleConversation(ctx, conversationID, readerID); err != nil {
		return 0, err
	}
	count, err := uc.msgRepo.MarkAllRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, errprocess.Internal("mark all read failed", err)
	}
	return count, nil
}

// Edit sender-only body update, sets the edited flag and timestamp
func (uc *MessageUseCase) Edit(ctx context.Context, messageID, newBody, requesterID string) error {
	if err := uc.validateBody(newBody); err != nil {
		return err
	}
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return errprocess.Internal("message lookup failed", err)
	}
	if msg == nil || msg.Deleted {
		return errprocess.NotFound("message not found")
	}
	if msg.SenderID != requesterID {
		return errprocess.NotAuthorized("only the sender can edit a message")
	}
	if err := uc.msgRepo.UpdateBody(ctx, messageID, newBody, time.Now()); err != nil {
		return errprocess.Internal("message edit failed", err)
	}
	return nil
}

// SoftDelete sender-only; the message disappears from pagination and unread
// counts but the record stays
func (uc *MessageUseCase) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return errprocess.Internal("message lookup failed", err)
	}
	if msg == nil || msg.Deleted {
		return errprocess.NotFound("message not found")
	}
	if msg.SenderID != requesterID {
		return errprocess.NotAuthorized("only the sender can delete a message")
	}
	if err := uc.msgRepo.SoftDelete(ctx, messageID); err != nil {
		return errprocess.Internal("message delete failed", err)
	}
	return nil
}

// UnreadCount unread messages addressed to the user in one conversation
func (uc *MessageUseCase) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	if _, err := uc.requireVisibleConversation(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	count, err := uc.msgRepo.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		return 0, errprocess.Internal("unread count failed", err)
	}
	return count, nil
}

// UnreadByConversation per-conversation unread counts across all of the
// user's conversations
func (uc *MessageUseCase) UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error) {
	result, err := uc.msgRepo.UnreadByConversation(ctx, userID)
	if err != nil {
		return nil, errprocess.Internal("unread by conversation failed", err)
	}
	return result, nil
}

// TotalUnread global unread count for the user
func (uc *MessageUseCase) TotalUnread(ctx context.Context, userID string) (int64, error) {
	count, err := uc.msgRepo.TotalUnread(ctx, userID)
	if err != nil {
		return 0, errprocess.Internal("total unread failed", err)
	}
	return count, nil
}
