package main

import (
	stdcontext "context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func detect(ctx stdcontext.Context, c *cli.Context) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	event, err := loadEvent(c, dependencyContainer)
	if err != nil {
		return err
	}
	decision := dependencyContainer.Pipeline().Decide(event)
	fmt.Fprintf(c.App.Writer, "run=%v publish=%v: %v\n", decision.Run, decision.Publish, decision.Reason)
	return nil
}
