package main

import (
	stdcontext "context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func publish(ctx stdcontext.Context, c *cli.Context, force bool) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	event, err := loadEvent(c, dependencyContainer)
	if err != nil {
		return err
	}
	result, err := dependencyContainer.Pipeline().Publish(ctx, event, force)
	if err != nil {
		return err
	}
	if result.Commit != "" {
		fmt.Fprintf(c.App.Writer, "published %v to %v\n", result.Commit, result.Remote)
	}
	return nil
}
