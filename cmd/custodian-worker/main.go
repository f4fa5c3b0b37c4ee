package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/custodian/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "custodian-worker",
		EnableShellCompletion: true,
		Usage:                 "Run custody workflows: triggers, approvals, schedules and sweeps",
		Commands: []*cli.Command{
			NewRunCommand(),
			NewSweepCommand(),
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file://path or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "notifier-url",
				Usage:   "Notification target (redis://host:port/db or log)",
				Value:   "log",
				Sources: cli.EnvVars("NOTIFIER_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-instances",
				Usage:   "Maximum number of instances executing at once",
				Value:   workflow.DefaultMaxConcurrentInstances,
				Sources: cli.EnvVars("MAX_CONCURRENT_INSTANCES"),
			},
			&cli.DurationFlag{
				Name:    "scheduler-interval",
				Usage:   "How often SCHEDULE definitions are checked",
				Value:   time.Minute,
				Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often expired approvals and timed out instances are swept",
				Value:   time.Minute,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces with the OTLP HTTP exporter",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
