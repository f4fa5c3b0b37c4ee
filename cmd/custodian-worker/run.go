package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/custodian/pkg/log"
	"github.com/dukex/custodian/pkg/scheduler"
	"github.com/dukex/custodian/pkg/sweeper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Consume sensor alerts, fire schedules and sweep deadlines until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("custodian-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Custodian Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, command, logger)
			if err != nil {
				return err
			}
			defer a.close()

			err = a.eventBus.SubscribeAlerts(ctx, a.dispatcher.HandleSensorAlert)
			if err != nil {
				return fmt.Errorf("failed to subscribe to sensor alerts: %w", err)
			}

			group, ctx := errgroup.WithContext(ctx)

			group.Go(func() error {
				return scheduler.New(a.persistence, a.dispatcher, command.Duration("scheduler-interval"), logger).Run(ctx)
			})

			group.Go(func() error {
				return sweeper.New(a.persistence, a.engine, command.Duration("sweep-interval"), logger).Run(ctx)
			})

			logger.InfoContext(ctx, "Custodian Worker started")

			err = group.Wait()

			logger.InfoContext(ctx, "Shutting down Custodian Worker")

			return err
		},
	}
}
