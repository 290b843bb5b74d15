package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	presenceKeyPrefix = "messaging:online:"
	lastSeenKeyPrefix = "messaging:last_seen:"
)

// PresenceRepository tracks which users currently hold a live connection.
// Redis keeps it out of the process so multiple gateway instances agree;
// losing it on restart is acceptable, clients reconnect and re-announce.
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

type presenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository create a redis backed PresenceRepository
func NewPresenceRepository(client *redis.Client) PresenceRepository {
	return &presenceRepository{client: client}
}

func (r *presenceRepository) SetOnline(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, "1", 0)
	pipe.Set(ctx, lastSeenKeyPrefix+userID, now, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *presenceRepository) SetOffline(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	pipe := r.client.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.Set(ctx, lastSeenKeyPrefix+userID, now, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *presenceRepository) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, presenceKeyPrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *presenceRepository) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := r.client.Get(ctx, lastSeenKeyPrefix+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}
