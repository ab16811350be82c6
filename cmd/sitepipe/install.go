package main

import (
	stdcontext "context"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func install(ctx stdcontext.Context) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	return dependencyContainer.Pipeline().Install(ctx)
}
