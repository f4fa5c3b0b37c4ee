package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/custodian/pkg/log"
	"github.com/dukex/custodian/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func NewSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Reject expired approvals and cancel timed out instances once",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("custodian-worker").With("action", "sweep")

			a, err := newApp(ctx, command, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := sweeper.New(a.persistence, a.engine, 0, logger).Sweep(ctx, time.Now().UTC())

			fmt.Printf("Expired approvals: %d\n", result.ExpiredApprovals)
			fmt.Printf("Timed out instances: %d\n", result.TimedOutInstances)

			return err
		},
	}
}
