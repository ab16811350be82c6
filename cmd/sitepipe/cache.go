package main

import (
	stdcontext "context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func listCache(ctx stdcontext.Context, c *cli.Context) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	entries, err := dependencyContainer.Cache().List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVERSION\tBINARIES\tCREATED")
	for _, entry := range entries {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", entry.Key, entry.Version, entry.Binaries, entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func removeCache(ctx stdcontext.Context, key string) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	if err = dependencyContainer.Cache().Remove(key); err != nil {
		return err
	}
	dependencyContainer.Logger().Info(fmt.Sprintf("removed cache entry %v", key))
	return nil
}
