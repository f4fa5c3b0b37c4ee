// Package sweeper rejects approvals past their deadline and cancels instances
// that outlived their definition's timeout.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/dukex/custodian/pkg/workflow"
)

const (
	DefaultInterval = time.Minute

	expiredComment = "approval deadline passed"
)

// Engine is the part of the workflow engine the sweeper drives.
type Engine interface {
	Decide(ctx context.Context, req approvals.DecideRequest) (*approvals.DecideResult, error)
	Cancel(ctx context.Context, req workflow.CancelRequest) (*models.WorkflowInstance, error)
}

// Result counts what a single sweep changed.
type Result struct {
	ExpiredApprovals  int
	TimedOutInstances int
}

type Sweeper struct {
	approvals   persistence.ApprovalRepository
	instances   persistence.InstanceRepository
	definitions persistence.DefinitionRepository
	engine      Engine
	interval    time.Duration
	logger      *slog.Logger
}

func New(p persistence.Persistence, engine Engine, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Sweeper{
		approvals:   p.ApprovalRepository(),
		instances:   p.InstanceRepository(),
		definitions: p.DefinitionRepository(),
		engine:      engine,
		interval:    interval,
		logger:      logger.With("module", "sweeper"),
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Sweeper stopped")

			return nil
		case now := <-ticker.C:
			_, err := s.Sweep(ctx, now.UTC())
			if err != nil {
				s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass. Failures on single records are collected and the pass continues.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	var result Result

	expired, expireErr := s.expireApprovals(ctx, now)
	result.ExpiredApprovals = expired

	timedOut, timeoutErr := s.timeoutInstances(ctx, now)
	result.TimedOutInstances = timedOut

	if result.ExpiredApprovals > 0 || result.TimedOutInstances > 0 {
		s.logger.InfoContext(ctx, "Sweep finished",
			"expired_approvals", result.ExpiredApprovals,
			"timed_out_instances", result.TimedOutInstances,
		)
	}

	return result, errors.Join(expireErr, timeoutErr)
}

// expireApprovals records a system rejection on every pending approval past
// its deadline. A rejection is final for the instance.
func (s *Sweeper) expireApprovals(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.approvals.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired approvals: %w", err)
	}

	var (
		count int
		errs  []error
	)

	for _, approval := range expired {
		_, err := s.engine.Decide(ctx, approvals.DecideRequest{
			ApprovalID: approval.ID,
			Decision:   models.ApprovalStatusRejected,
			Comments:   expiredComment,
			Actor:      models.SystemActor,
		})
		if err != nil {
			if errors.Is(err, approvals.ErrAlreadyDecided) {
				continue
			}

			errs = append(errs, fmt.Errorf("failed to expire approval %s: %w", approval.ID, err))

			continue
		}

		s.logger.InfoContext(ctx, "Approval expired",
			"approval_id", approval.ID,
			"instance_id", approval.InstanceID,
			"deadline", approval.Deadline,
		)

		count++
	}

	return count, errors.Join(errs...)
}

func (s *Sweeper) timeoutInstances(ctx context.Context, now time.Time) (int, error) {
	open, err := s.instances.ListByStatus(ctx, models.CancellableStatuses...)
	if err != nil {
		return 0, fmt.Errorf("failed to list open instances: %w", err)
	}

	timeouts := make(map[string]time.Duration)

	var (
		count int
		errs  []error
	)

	for _, instance := range open {
		timeout, ok := timeouts[instance.DefinitionID]
		if !ok {
			definition, err := s.definitions.GetByID(ctx, instance.DefinitionID)
			if err != nil && !persistence.IsNotFound(err) {
				errs = append(errs, err)

				continue
			}

			if definition != nil {
				timeout = definition.Timeout()
			}

			timeouts[instance.DefinitionID] = timeout
		}

		if timeout <= 0 || now.Sub(instance.CreatedAt) < timeout {
			continue
		}

		_, err := s.engine.Cancel(ctx, workflow.CancelRequest{
			InstanceID: instance.ID,
			Actor:      models.SystemActor,
			Reason:     fmt.Sprintf("timed out after %s", timeout),
		})
		if err != nil {
			if errors.Is(err, workflow.ErrNotCancellable) {
				continue
			}

			errs = append(errs, fmt.Errorf("failed to time out instance %s: %w", instance.ID, err))

			continue
		}

		count++
	}

	return count, errors.Join(errs...)
}
