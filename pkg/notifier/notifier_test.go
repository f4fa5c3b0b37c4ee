package notifier_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/custodian/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer

	n := notifier.NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	err := n.Notify(t.Context(), notifier.Notification{
		UserID:  "u1",
		Kind:    notifier.KindApprovalRequired,
		Title:   "Approval required",
		Message: "Release sample 42",
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "module=log_notifier")
	assert.Contains(t, buf.String(), "user_id=u1")
	assert.Contains(t, buf.String(), "kind="+string(notifier.KindApprovalRequired))
}
