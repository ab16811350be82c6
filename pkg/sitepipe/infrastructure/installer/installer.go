package installer

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

func NewDependencyInstaller(logger applogger.Logger, runner command.Runner) service.DependencyInstaller {
	return &installer{
		logger: logger,
		runner: runner,
	}
}

type installer struct {
	logger applogger.Logger
	runner command.Runner
}

func (i installer) Install(ctx context.Context, dependencies model.Dependencies) error {
	if dependencies.Install.Executable == "" {
		i.logger.Info("no dependency install command configured")
		return nil
	}
	manifest := filepath.Join(dependencies.Dir, dependencies.Manifest)
	if _, err := os.Stat(manifest); err != nil {
		return errors.Wrapf(err, "dependency manifest %v not found", manifest)
	}
	cmd, err := command.Render(dependencies.Install, command.Variables{
		Prefix: filepath.Join(dependencies.Dir, dependencies.Prefix),
	})
	if err != nil {
		return errors.Wrap(err, "invalid dependency install command")
	}
	if cmd.WorkDir == "" {
		cmd.WorkDir = dependencies.Dir
	}
	cmd.Verbose = true

	i.logger.Info(fmt.Sprintf("start install dependencies in \"%v\"...", dependencies.Dir))
	start := time.Now()
	output, err := i.runner.Execute(ctx, cmd)
	if err != nil {
		i.logger.Debug(output)
		return errors.Wrapf(err, "failed to install dependencies from %v", manifest)
	}
	i.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))

	if dependencies.Prefix != "" {
		prefix := filepath.Join(dependencies.Dir, dependencies.Prefix)
		if _, err = os.Stat(prefix); err != nil {
			return errors.Wrapf(err, "dependency prefix %v missing after install", prefix)
		}
	}
	return nil
}
