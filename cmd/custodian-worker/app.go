package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/custodian/pkg/actions"
	"github.com/dukex/custodian/pkg/approvals"
	"github.com/dukex/custodian/pkg/cmd"
	"github.com/dukex/custodian/pkg/dispatcher"
	"github.com/dukex/custodian/pkg/eventbus"
	"github.com/dukex/custodian/pkg/persistence"
	"github.com/dukex/custodian/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

// app holds the wired components shared by the run and sweep commands.
type app struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	engine      *workflow.Engine
	dispatcher  *dispatcher.Dispatcher
	logger      *slog.Logger

	closers []func() error
}

func newApp(ctx context.Context, command *cli.Command, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	a.persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, func() error { return a.persistence.Close(ctx) })

	a.eventBus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"),
		command.Bool("otel-enabled"), logger)
	if err != nil {
		a.close()

		return nil, err
	}

	a.closers = append(a.closers, a.eventBus.Close)

	n, closeNotifier, err := cmd.NewNotifier(ctx, command.String("notifier-url"), logger)
	if err != nil {
		a.close()

		return nil, err
	}

	a.closers = append(a.closers, closeNotifier)

	coordinator := approvals.NewCoordinator(a.persistence, n, logger)
	executor := actions.NewExecutor(a.persistence, n, a.eventBus, coordinator, tracer, logger)
	runner := workflow.NewRunner(int(command.Int("max-concurrent-instances")), logger)

	a.engine = workflow.NewEngine(a.persistence, executor, coordinator, a.eventBus, runner, tracer, logger)
	a.dispatcher = dispatcher.New(a.persistence, a.engine, tracer, logger)

	return a, nil
}

// close waits for in-flight instances, then releases adapters in reverse order.
func (a *app) close() {
	if a.engine != nil {
		err := a.engine.Wait()
		if err != nil {
			a.logger.Error("Instance runner finished with errors", "error", err)
		}
	}

	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("Failed to close resources", "error", err)
	}
}
