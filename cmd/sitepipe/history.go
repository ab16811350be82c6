package main

import (
	stdcontext "context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func listHistory(ctx stdcontext.Context, c *cli.Context, limit int) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	store := dependencyContainer.History()
	if store == nil {
		return errors.New("run history is disabled, set history in the config")
	}
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tID\tBRANCH\tOUTCOME\tFAILED\tPUBLISHED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\t%v\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), shortID(r.ID), r.Branch, r.Outcome,
			r.FailedPhase, r.Published, r.FinishedAt.Sub(r.StartedAt))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
