package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const typingKeyPrefix = "messaging:typing:"

// DefaultTypingTTL how long a typing indicator survives without renewal.
// The key expiry is what clears a crashed client's ghost indicator.
const DefaultTypingTTL = 5 * time.Second

// TypingRepository ephemeral per-conversation "who is typing" state
type TypingRepository interface {
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	IsTyping(ctx context.Context, conversationID, userID string) (bool, error)
}

type typingRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTypingRepository create a redis backed TypingRepository, ttl <= 0 uses
// the default
func NewTypingRepository(client *redis.Client, ttl time.Duration) TypingRepository {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &typingRepository{client: client, ttl: ttl}
}

func typingKey(conversationID, userID string) string {
	return typingKeyPrefix + conversationID + ":" + userID
}

func (r *typingRepository) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := typingKey(conversationID, userID)
	if !isTyping {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.Set(ctx, key, "1", r.ttl).Err()
}

func (r *typingRepository) IsTyping(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, typingKey(conversationID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
