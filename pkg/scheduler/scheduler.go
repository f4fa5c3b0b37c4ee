// Package scheduler polls SCHEDULE definitions and fires the ones that are due.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/persistence"
)

const DefaultInterval = time.Minute

// Firer starts an instance of a SCHEDULE definition.
type Firer interface {
	OnScheduleFire(ctx context.Context, definitionID string) (*models.WorkflowInstance, error)
}

type entry struct {
	schedule *models.Schedule
	version  int
}

// Scheduler is a centralized poller: every tick it refreshes the schedule of
// every active SCHEDULE definition and fires those whose next due time passed.
type Scheduler struct {
	definitions persistence.DefinitionRepository
	firer       Firer
	interval    time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	schedules map[string]*entry
}

func New(p persistence.Persistence, firer Firer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		definitions: p.DefinitionRepository(),
		firer:       firer,
		interval:    interval,
		logger:      logger.With("module", "scheduler"),
		schedules:   make(map[string]*entry),
	}
}

// Run polls until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")

			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now.UTC())
		}
	}
}

// Tick syncs schedules with the stored definitions and fires the due ones. It
// returns the ids of the fired definitions.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.sync(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load scheduled definitions", "error", err)

		return nil
	}

	fired := make([]string, 0)

	for id, e := range s.schedules {
		if !e.schedule.IsDue(now) {
			continue
		}

		s.logger.InfoContext(ctx, "Processing due schedule",
			"definition_id", id,
			"cron_expression", e.schedule.CronExpression,
			"due_at", e.schedule.NextDueAt,
		)

		_, err := s.firer.OnScheduleFire(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to fire schedule", "definition_id", id, "error", err)
		} else {
			fired = append(fired, id)
		}

		// a failed fire is not retried, the next occurrence is
		e.schedule.Advance(now)
	}

	return fired
}

// sync adds new definitions, recomputes edited ones and forgets removed ones.
func (s *Scheduler) sync(ctx context.Context, now time.Time) error {
	definitions, err := s.definitions.ListActiveByTriggerKind(ctx, models.TriggerKindSchedule)
	if err != nil {
		return err
	}

	active := make(map[string]struct{}, len(definitions))

	for _, definition := range definitions {
		active[definition.ID] = struct{}{}

		current, ok := s.schedules[definition.ID]
		if ok && current.version == definition.Version &&
			current.schedule.CronExpression == definition.TriggerConfig.CronExpression &&
			current.schedule.Timezone == definition.TriggerConfig.Timezone {
			continue
		}

		schedule, err := models.NewSchedule(definition.ID,
			definition.TriggerConfig.CronExpression, definition.TriggerConfig.Timezone, now)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping definition with invalid schedule", "definition_id", definition.ID, "error", err)
			delete(s.schedules, definition.ID)

			continue
		}

		s.schedules[definition.ID] = &entry{schedule: schedule, version: definition.Version}

		s.logger.InfoContext(ctx, "Schedule registered", "definition_id", definition.ID, "next_due_at", schedule.NextDueAt)
	}

	for id := range s.schedules {
		if _, ok := active[id]; !ok {
			delete(s.schedules, id)
		}
	}

	return nil
}
