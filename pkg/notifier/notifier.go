// Package notifier provides the notification capability used to reach organization members.
package notifier

import (
	"context"
	"log/slog"
)

// Kind classifies a notification for the delivery side.
type Kind string

const (
	KindWorkflow         Kind = "WORKFLOW"
	KindApprovalRequired Kind = "APPROVAL_REQUIRED"
)

// Notification is one message addressed to one user.
type Notification struct {
	UserID  string         `json:"user_id"`
	Kind    Kind           `json:"kind"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notifier hands a notification to the outbound delivery pipeline.
// Callers treat it as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the log. Used when no delivery pipeline is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "log_notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "Notification",
		"user_id", notification.UserID,
		"kind", notification.Kind,
		"title", notification.Title,
		"message", notification.Message,
	)

	return nil
}
