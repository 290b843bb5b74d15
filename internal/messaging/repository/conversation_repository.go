package repository

import (
	"context"
	"errors"
	"time"

	"civic_message_service/internal/messaging/domain"

	"gorm.io/gorm"
)

// ErrDuplicatePair insert raced with the other participant's StartOrGet;
// callers retry the lookup.
var ErrDuplicatePair = errors.New("conversation pair already exists")

// ConversationRepository definition conversation persistence
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	// FindByPair returns nil, nil when no conversation exists for the pair
	FindByPair(ctx context.Context, userLow, userHigh string) (*domain.Conversation, error)
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListForUser conversations not deleted and not hidden for the user,
	// newest activity first
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	// Restore clears the requester's hidden and deleted flags on new intent
	Restore(ctx context.Context, conv *domain.Conversation, userID string) error
	SetHidden(ctx context.Context, conv *domain.Conversation, userID string, hidden bool) error
	SetDeleted(ctx context.Context, conv *domain.Conversation, userID string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository create a ConversationRepository backed by postgres
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	err := r.db.WithContext(ctx).Create(conv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePair
	}
	return err
}

func (r *conversationRepository) FindByPair(ctx context.Context, userLow, userHigh string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", userLow, userHigh).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Where("(user_low = ? AND NOT deleted_for_low AND NOT hidden_for_low)", userID).
		Or("(user_high = ? AND NOT deleted_for_high AND NOT hidden_for_high)", userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) Restore(ctx context.Context, conv *domain.Conversation, userID string) error {
	updates := r.sideColumns(conv, userID, map[string]interface{}{
		"hidden":  false,
		"deleted": false,
	})
	return r.db.WithContext(ctx).Model(conv).Updates(updates).Error
}

func (r *conversationRepository) SetHidden(ctx context.Context, conv *domain.Conversation, userID string, hidden bool) error {
	updates := r.sideColumns(conv, userID, map[string]interface{}{"hidden": hidden})
	return r.db.WithContext(ctx).Model(conv).Updates(updates).Error
}

func (r *conversationRepository) SetDeleted(ctx context.Context, conv *domain.Conversation, userID string) error {
	updates := r.sideColumns(conv, userID, map[string]interface{}{"deleted": true, "hidden": false})
	return r.db.WithContext(ctx).Model(conv).Updates(updates).Error
}

// sideColumns maps logical flags onto the low/high columns of the caller's
// side of the pair.
func (r *conversationRepository) sideColumns(conv *domain.Conversation, userID string, flags map[string]interface{}) map[string]interface{} {
	side := "high"
	if conv.UserLow == userID {
		side = "low"
	}
	updates := map[string]interface{}{}
	for flag, v := range flags {
		updates[flag+"_for_"+side] = v
	}
	return updates
}

// TouchConversation bump last-message time and unhide both sides, used
// inside the send transaction so a hidden conversation reappears on new
// activity.
func TouchConversation(tx *gorm.DB, conversationID string, at time.Time) error {
	return tx.Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_at": at,
			"hidden_for_low":  false,
			"hidden_for_high": false,
		}).Error
}
