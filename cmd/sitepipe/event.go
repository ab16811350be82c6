package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/config/eventconfig"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event",
			Usage:   "GitHub push event payload",
			EnvVars: []string{"GITHUB_EVENT_PATH"},
		},
		&cli.StringFlag{
			Name:  "branch",
			Usage: "override the pushed branch",
		},
		&cli.StringSliceFlag{
			Name:  "changed",
			Usage: "override the changed paths",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "diff the local repository from this revision to HEAD",
		},
	}
}

// loadEvent assembles the trigger event from the push payload when one is
// given, otherwise from the local repository. Flags override either source.
func loadEvent(c *cli.Context, container dependency.Container) (model.TriggerEvent, error) {
	if path := c.String("event"); path != "" {
		event, err := eventconfig.Load(path)
		if err != nil {
			return model.TriggerEvent{}, err
		}
		return overrideEvent(c, event), nil
	}

	repositoryProvider := container.RepositoryProvider()
	event := model.TriggerEvent{Source: model.EventSourceGit}
	if !c.IsSet("branch") {
		branch, err := repositoryProvider.Branch()
		if err != nil {
			return model.TriggerEvent{}, err
		}
		if branch == "" {
			// Detached HEAD, as checked out by CI runners.
			branch = os.Getenv("GITHUB_REF_NAME")
		}
		event.Branch = branch
	}
	commit, err := repositoryProvider.HeadCommit()
	if err != nil {
		return model.TriggerEvent{}, err
	}
	event.Commit = commit
	if !c.IsSet("changed") {
		event.ChangedPaths, err = repositoryProvider.ChangedPaths(c.String("since"))
		if err != nil {
			return model.TriggerEvent{}, err
		}
	}
	return overrideEvent(c, event), nil
}

func overrideEvent(c *cli.Context, event model.TriggerEvent) model.TriggerEvent {
	if c.IsSet("branch") {
		event.Branch = c.String("branch")
		event.Source = model.EventSourceManual
	}
	if c.IsSet("changed") {
		event.ChangedPaths = c.StringSlice("changed")
		event.Source = model.EventSourceManual
	}
	return event
}
