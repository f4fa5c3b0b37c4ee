package workflow

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const DefaultMaxConcurrentInstances = 16

// Runner executes instance phases as independent units of work, at most limit at a time.
// Submit never blocks the caller.
type Runner struct {
	group   errgroup.Group
	pending sync.WaitGroup
	logger  *slog.Logger
}

func NewRunner(limit int, logger *slog.Logger) *Runner {
	if limit < 1 {
		limit = DefaultMaxConcurrentInstances
	}

	r := &Runner{logger: logger.With("module", "instance_runner")}
	r.group.SetLimit(limit)

	return r
}

// Submit schedules fn. The unit of work outlives ctx cancellation but keeps its values.
func (r *Runner) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.pending.Add(1)

	ctx = context.WithoutCancel(ctx)
	task := func() error {
		defer r.pending.Done()

		err := fn(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "Unit of work failed", "task", name, "error", err)
		}

		return nil
	}

	if r.group.TryGo(task) {
		return
	}

	go r.group.Go(task)
}

// Wait blocks until every submitted unit of work, including ones submitted while waiting, has finished.
func (r *Runner) Wait() error {
	r.pending.Wait()

	return r.group.Wait()
}
