package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notification 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
type Notification struct {
	Type          string `json:"type"`
	ResourceID    uint   `json:"resource_id"`
	Status        string `json:"status"`
	Label         string `json:"label,omitempty"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorCode     int    `json:"error_code"`
}

// Notifier pushes a notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

// ChannelFor returns the redis channel of a user.
func ChannelFor(userID string) string {
	return "user_notify:" + userID
}

// RedisNotifier publishes notifications on user_notify:<userID>.
type RedisNotifier struct {
	client redis.UniversalClient
}

// NewRedisNotifier 构造基于 Redis Pub/Sub 的通知器。
func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := ChannelFor(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
