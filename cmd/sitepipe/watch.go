package main

import (
	stdcontext "context"
	"fmt"
	"path/filepath"
	"time"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/watcher"
)

// watch rebuilds the site on every batch of local changes. Runs are forced
// dry-runs, so nothing is ever published.
func watch(ctx stdcontext.Context, debounce time.Duration) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	config := dependencyContainer.Config()
	logger := dependencyContainer.Logger()
	detector := service.NewDetector(config.CanonicalBranch, config.Trigger)

	ignore := []string{config.Build.OutputDir, config.Toolchain.CacheDir, config.Toolchain.BinDir}
	if config.Dependencies.Prefix != "" {
		ignore = append(ignore, filepath.Join(config.Dependencies.Dir, config.Dependencies.Prefix))
	}
	fileWatcher, err := watcher.NewWatcher(logger, watcher.Options{
		RepoDir:  config.RepoDir,
		Roots:    config.Trigger.Paths,
		Ignore:   ignore,
		Match:    detector.Matches,
		Debounce: debounce,
	})
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("watching %v for changes...", config.RepoDir))
	repositoryProvider := dependencyContainer.RepositoryProvider()
	return fileWatcher.Run(ctx, func(ctx stdcontext.Context, paths []string) {
		event := previewEvent(logger, repositoryProvider, config.CanonicalBranch, paths)
		_, err := dependencyContainer.Pipeline().Run(ctx, event, service.RunOptions{Force: true, DryRun: true})
		if err != nil {
			logger.Error(err, "preview build failed")
		}
	})
}

// previewEvent describes local changes on the checked out branch, falling back
// to the canonical branch on a detached HEAD.
func previewEvent(
	logger applogger.Logger,
	repositoryProvider service.RepositoryProvider,
	canonicalBranch model.Branch,
	paths []string,
) model.TriggerEvent {
	branch, err := repositoryProvider.Branch()
	if err != nil {
		logger.Warning(err, "failed to read current branch, preview as "+canonicalBranch)
	}
	if branch == "" {
		branch = canonicalBranch
	}
	commit, err := repositoryProvider.HeadCommit()
	if err != nil {
		logger.Warning(err, "failed to read HEAD commit")
	}
	return model.TriggerEvent{
		Branch:       branch,
		Commit:       commit,
		ChangedPaths: paths,
		Source:       model.EventSourceWatch,
	}
}
