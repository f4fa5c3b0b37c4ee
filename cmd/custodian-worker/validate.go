package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/custodian/pkg/cmd"
	"github.com/dukex/custodian/pkg/log"
	"github.com/dukex/custodian/pkg/models"
	"github.com/dukex/custodian/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidDefinitions = errors.New("invalid workflow definitions")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files, optionally importing the valid ones",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "import",
				Usage: "Store valid definitions in the database",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("custodian-worker").With("action", "validate")

			definitions := make([]*models.WorkflowDefinition, 0)

			for _, path := range command.Args().Slice() {
				loaded, err := loadDefinitions(path)
				if err != nil {
					return err
				}

				definitions = append(definitions, loaded...)
			}

			logger.InfoContext(ctx, "Validating definitions", "definitions", len(definitions))

			service := services.NewDefinition(nil, logger)

			if command.Bool("import") {
				p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
				if err != nil {
					return err
				}

				defer func() {
					err := p.Close(ctx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
					}
				}()

				service = services.NewDefinition(p, logger)
			}

			return validateDefinitions(ctx, os.Stdout, service, definitions, command.Bool("import"), logger)
		},
	}
}

// loadDefinitions reads a JSON file holding one definition or an array of them.
func loadDefinitions(path string) ([]*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var definitions []*models.WorkflowDefinition

		err = json.Unmarshal(data, &definitions)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		return definitions, nil
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(data, &definition)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return []*models.WorkflowDefinition{&definition}, nil
}

func validateDefinitions(
	ctx context.Context,
	out io.Writer,
	service *services.Definition,
	definitions []*models.WorkflowDefinition,
	store bool,
	logger *slog.Logger,
) error {
	_, _ = fmt.Fprintln(out, "Definition Validation Results:")
	_, _ = fmt.Fprintln(out, "==============================")

	valid, invalid := 0, 0

	for _, definition := range definitions {
		_, _ = fmt.Fprintf(out, "\nDefinition: %s (%s, %d actions)\n", definition.Name, definition.TriggerKind, len(definition.Actions))

		err := service.Validate(definition)
		if err != nil {
			_, _ = fmt.Fprintf(out, "    INVALID: %v\n", err)
			invalid++

			continue
		}

		if store {
			created, err := service.Create(ctx, definition)
			if err != nil {
				_, _ = fmt.Fprintf(out, "    FAILED TO IMPORT: %v\n", err)
				invalid++

				continue
			}

			logger.InfoContext(ctx, "Definition imported", "definition_id", created.ID)
			_, _ = fmt.Fprintf(out, "    VALID, imported as %s\n", created.ID)
		} else {
			_, _ = fmt.Fprintln(out, "    VALID")
		}

		valid++
	}

	_, _ = fmt.Fprintf(out, "\nValidation Summary:\n")
	_, _ = fmt.Fprintf(out, "  Total definitions: %d\n", valid+invalid)
	_, _ = fmt.Fprintf(out, "  Valid definitions: %d\n", valid)
	_, _ = fmt.Fprintf(out, "  Invalid definitions: %d\n", invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidDefinitions, invalid, valid+invalid)
	}

	return nil
}
