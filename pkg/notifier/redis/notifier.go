// Package redis appends notifications to a Redis stream consumed by the delivery pipeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/notifier"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "custodian:notifications"
	defaultMaxLen = 100000
)

// Notifier writes one stream entry per notification.
type Notifier struct {
	client redis.UniversalClient
	stream string
	logger *slog.Logger
}

// New connects to the Redis server described by a redis:// URL.
func New(ctx context.Context, url string, logger *slog.Logger) (*Notifier, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewWithClient(client, DefaultStream, logger), nil
}

func NewWithClient(client redis.UniversalClient, stream string, logger *slog.Logger) *Notifier {
	if stream == "" {
		stream = DefaultStream
	}

	return &Notifier{
		client: client,
		stream: stream,
		logger: logger.With("module", "redis_notifier", "stream", stream),
	}
}

func (n *Notifier) Notify(ctx context.Context, notification notifier.Notification) error {
	data, err := json.Marshal(notification.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: defaultMaxLen,
		Approx: true,
		Values: map[string]any{
			"user_id": notification.UserID,
			"kind":    string(notification.Kind),
			"title":   notification.Title,
			"message": notification.Message,
			"data":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}

	n.logger.DebugContext(ctx, "Notification queued", "entry_id", id, "user_id", notification.UserID)

	return nil
}

func (n *Notifier) Close() error {
	return n.client.Close()
}
