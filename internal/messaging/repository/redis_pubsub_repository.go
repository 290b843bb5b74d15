package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PresenceChannel shared channel for presence-changed broadcast. Every
// gateway instance subscribes, so presence fans out past process boundaries.
const PresenceChannel = "messaging:presence"

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		ctx:    context.Background(),
	}
}

// Publish serialize the event and publish it on the channel
func (r *RedisPubSub) Publish(channel string, event domain.PresenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Subscribe watch the channel until ctx is cancelled, calling handler for
// each presence event
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(ev domain.PresenceEvent)) error {
	sub := r.client.Subscribe(r.ctx, channel)
	go func() {
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var ev domain.PresenceEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					logger.Log.Error("presence event decode failed", zap.String("err", err.Error()))
					continue
				}
				handler(ev)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
