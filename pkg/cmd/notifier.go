package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/notifier/redis"
)

// NewNotifier returns the Redis stream notifier for redis:// URLs and the log
// notifier otherwise. The returned close func is never nil.
func NewNotifier(ctx context.Context, url string, logger *slog.Logger) (notifier.Notifier, func() error, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		n, err := redis.New(ctx, url, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis notifier: %w", err)
		}

		return n, n.Close, nil
	}

	return notifier.NewLogNotifier(logger), func() error { return nil }, nil
}
