package repository

import (
	"context"
	"errors"
	"time"

	"civic_message_service/internal/messaging/domain"

	"gorm.io/gorm"
)

// MessageRepository definition message persistence and the delivery-state
// machine. State transitions are conditional updates that only ever advance,
// so concurrent MarkDelivered/MarkRead calls cannot regress a message.
type MessageRepository interface {
	// Insert persists the message and bumps the conversation's last-message
	// time in one transaction; this is the durability boundary of a send.
	Insert(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// Page non-deleted messages, newest first
	Page(ctx context.Context, conversationID string, pageIndex, pageSize int) ([]domain.Message, error)
	// AdvanceDelivered SENT -> DELIVERED, reports whether a row changed
	AdvanceDelivered(ctx context.Context, messageID string) (bool, error)
	// AdvanceRead -> READ for a message addressed to reader, reports whether
	// a row changed
	AdvanceRead(ctx context.Context, messageID, readerID string) (bool, error)
	// MarkAllRead bulk READ transition for everything addressed to reader in
	// the conversation, returns affected count
	MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error)
	// FindUndelivered all SENT messages addressed to the user across their
	// conversations, oldest first
	FindUndelivered(ctx context.Context, userID string) ([]domain.Message, error)
	// MarkAllUndelivered bulk SENT -> DELIVERED for everything addressed to
	// the user
	MarkAllUndelivered(ctx context.Context, userID string) (int64, error)
	UpdateBody(ctx context.Context, messageID, body string, at time.Time) error
	SoftDelete(ctx context.Context, messageID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
	UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error)
	TotalUnread(ctx context.Context, userID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository create a MessageRepository backed by postgres
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return TouchConversation(tx, msg.ConversationID, msg.CreatedAt)
	})
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) Page(ctx context.Context, conversationID string, pageIndex, pageSize int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND NOT deleted", conversationID).
		Order("seq DESC").
		Offset(pageIndex * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) AdvanceDelivered(ctx context.Context, messageID string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND state = ?", messageID, domain.DeliverySent).
		Updates(map[string]interface{}{
			"state":        domain.DeliveryDelivered,
			"delivered_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *messageRepository) AdvanceRead(ctx context.Context, messageID, readerID string) (bool, error) {
	now := time.Now()
	// READ implies DELIVERED, so a still-missing delivered_at is filled here
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND sender_id <> ? AND state <> ?", messageID, readerID, domain.DeliveryRead).
		Updates(map[string]interface{}{
			"state":        domain.DeliveryRead,
			"read_at":      now,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *messageRepository) MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND state <> ? AND NOT deleted",
			conversationID, readerID, domain.DeliveryRead).
		Updates(map[string]interface{}{
			"state":        domain.DeliveryRead,
			"read_at":      now,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	return res.RowsAffected, res.Error
}

// conversationsOf subquery of conversation ids the user participates in,
// skipping the ones the user soft-deleted so backlog and unread queries
// mirror what the listing shows
func (r *messageRepository) conversationsOf(userID string) *gorm.DB {
	return r.db.Model(&domain.Conversation{}).
		Select("id").
		Where("(user_low = ? AND NOT deleted_for_low) OR (user_high = ? AND NOT deleted_for_high)", userID, userID)
}

func (r *messageRepository) FindUndelivered(ctx context.Context, userID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("state = ? AND sender_id <> ? AND NOT deleted AND conversation_id IN (?)",
			domain.DeliverySent, userID, r.conversationsOf(userID)).
		Order("seq ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) MarkAllUndelivered(ctx context.Context, userID string) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("state = ? AND sender_id <> ? AND NOT deleted AND conversation_id IN (?)",
			domain.DeliverySent, userID, r.conversationsOf(userID)).
		Updates(map[string]interface{}{
			"state":        domain.DeliveryDelivered,
			"delivered_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *messageRepository) UpdateBody(ctx context.Context, messageID, body string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"body":      body,
			"edited":    true,
			"edited_at": at,
		}).Error
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", messageID).
		Update("deleted", true).Error
}

func (r *messageRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND state <> ? AND NOT deleted",
			conversationID, userID, domain.DeliveryRead).
		Count(&count).Error
	return count, err
}

func (r *messageRepository) UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error) {
	var result []domain.ConversationUnread
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Select("conversation_id, COUNT(*) AS unread_count").
		Where("sender_id <> ? AND state <> ? AND NOT deleted AND conversation_id IN (?)",
			userID, domain.DeliveryRead, r.conversationsOf(userID)).
		Group("conversation_id").
		Scan(&result).Error
	return result, err
}

func (r *messageRepository) TotalUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("sender_id <> ? AND state <> ? AND NOT deleted AND conversation_id IN (?)",
			userID, domain.DeliveryRead, r.conversationsOf(userID)).
		Count(&count).Error
	return count, err
}
