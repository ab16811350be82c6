package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
)

func NewSiteBuilder(
	logger applogger.Logger,
	repositoryProvider service.RepositoryProvider,
	runner command.Runner,
) service.SiteBuilder {
	return &siteBuilder{
		logger:             logger,
		repositoryProvider: repositoryProvider,
		runner:             runner,
	}
}

type siteBuilder struct {
	logger             applogger.Logger
	repositoryProvider service.RepositoryProvider
	runner             command.Runner
}

func (builder siteBuilder) Build(ctx context.Context, build model.Build, event model.TriggerEvent) (service.BuildResult, error) {
	if err := CheckOutputDir(build.OutputDir, builder.repositoryProvider.Path(), build.WorkDir); err != nil {
		return service.BuildResult{}, err
	}
	if build.FullHistory {
		if err := builder.ensureFullHistory(ctx); err != nil {
			return service.BuildResult{}, err
		}
	}
	result, err := builder.buildOnce(ctx, build, event)
	if err != nil || !build.VerifyDeterminism {
		return result, err
	}

	builder.logger.Info("rebuild to verify deterministic output...")
	again, err := builder.buildOnce(ctx, build, event)
	if err != nil {
		return service.BuildResult{}, err
	}
	if again.Digest != result.Digest {
		return service.BuildResult{}, errors.Wrapf(service.ErrNondeterministicBuild, "digest %v != %v", result.Digest, again.Digest)
	}
	return result, nil
}

func (builder siteBuilder) ensureFullHistory(ctx context.Context) error {
	shallow, err := builder.repositoryProvider.IsShallow()
	if err != nil {
		return err
	}
	if !shallow {
		return nil
	}
	builder.logger.Info("repository is shallow, fetching full history...")
	return builder.repositoryProvider.Unshallow(ctx)
}

func (builder siteBuilder) buildOnce(ctx context.Context, build model.Build, event model.TriggerEvent) (service.BuildResult, error) {
	if err := CheckOutputDir(build.OutputDir, builder.repositoryProvider.Path(), build.WorkDir); err != nil {
		return service.BuildResult{}, err
	}
	// Output is never reused between builds.
	if err := os.RemoveAll(build.OutputDir); err != nil {
		return service.BuildResult{}, errors.Wrapf(err, "failed to clean output directory %v", build.OutputDir)
	}
	cmd, err := command.Render(build.Command, command.Variables{
		OutputDir: build.OutputDir,
		RepoDir:   builder.repositoryProvider.Path(),
		Branch:    event.Branch,
		Commit:    event.Commit,
	})
	if err != nil {
		return service.BuildResult{}, errors.Wrap(err, "invalid build command")
	}
	if cmd.WorkDir == "" {
		cmd.WorkDir = build.WorkDir
	}
	cmd.Verbose = true

	builder.logger.Info(fmt.Sprintf("start build site into \"%v\"...", build.OutputDir))
	start := time.Now()
	output, err := builder.runner.Execute(ctx, cmd)
	if err != nil {
		builder.logger.Debug(output)
		return service.BuildResult{}, errors.Wrap(err, "site build failed")
	}
	builder.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))

	entries, err := os.ReadDir(build.OutputDir)
	if err != nil {
		return service.BuildResult{}, errors.Wrapf(err, "build produced no output directory %v", build.OutputDir)
	}
	if len(entries) == 0 {
		return service.BuildResult{}, errors.Errorf("build produced an empty output directory %v", build.OutputDir)
	}
	digest, files, err := Digest(build.OutputDir)
	if err != nil {
		return service.BuildResult{}, err
	}
	abs, err := filepath.Abs(build.OutputDir)
	if err != nil {
		return service.BuildResult{}, errors.Wrap(err, "failed to resolve output directory")
	}
	return service.BuildResult{OutputDir: abs, Digest: digest, Files: files}, nil
}
