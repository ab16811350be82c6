package main

import (
	stdcontext "context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func build(ctx stdcontext.Context, c *cli.Context) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	event, err := loadEvent(c, dependencyContainer)
	if err != nil {
		return err
	}
	result, err := dependencyContainer.Pipeline().Build(ctx, event)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%v: %v files, digest %v\n", result.OutputDir, result.Files, result.Digest)
	return nil
}
