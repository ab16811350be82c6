package main

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func run(ctx stdcontext.Context, c *cli.Context, force, dryRun, asJSON bool) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	event, err := loadEvent(c, dependencyContainer)
	if err != nil {
		return err
	}
	report, runErr := dependencyContainer.Pipeline().Run(ctx, event, service.RunOptions{Force: force, DryRun: dryRun})
	if asJSON {
		encoder := json.NewEncoder(c.App.Writer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(c.App.Writer, report)
	}
	return runErr
}

func printReport(w io.Writer, report model.RunReport) {
	fmt.Fprintf(w, "run %v: %v (%v)\n", report.ID, report.Outcome, report.Decision.Reason)
	for _, phase := range report.Phases {
		line := fmt.Sprintf("  %-10v %-10v %v", phase.Phase, phase.Status, phase.Duration)
		if phase.Error != "" {
			line += " " + phase.Error
		} else if phase.Detail != "" {
			line += " " + phase.Detail
		}
		fmt.Fprintln(w, line)
	}
}
