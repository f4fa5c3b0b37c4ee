package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RespectsLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	runner := NewRunner(2, logger)

	var running, peak, done atomic.Int32

	for range 8 {
		runner.Submit(t.Context(), "work", func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			done.Add(1)

			return errors.New("logged, not propagated")
		})
	}

	require.NoError(t, runner.Wait())
	assert.Equal(t, int32(8), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunner_OutlivesCallerContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	runner := NewRunner(0, logger)

	ctx, cancel := context.WithCancel(t.Context())

	var seen atomic.Value

	runner.Submit(ctx, "work", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		seen.Store(ctx.Err() == nil)

		return nil
	})
	cancel()

	require.NoError(t, runner.Wait())
	assert.Equal(t, true, seen.Load())
}

func TestRunner_NestedSubmit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	runner := NewRunner(1, logger)

	var done atomic.Bool

	runner.Submit(t.Context(), "outer", func(ctx context.Context) error {
		runner.Submit(ctx, "inner", func(context.Context) error {
			done.Store(true)

			return nil
		})

		return nil
	})

	require.NoError(t, runner.Wait())
	assert.True(t, done.Load())
}
