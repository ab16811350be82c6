package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/config/pipelineconfig"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/dependency"
)

const (
	appName       = "sitepipe"
	logFormatText = "text"
	logFormatJSON = "json"
)

// withContainer loads the pipeline config and puts the dependency container
// into the command context before running next. Only commands that do work
// need a config, so help and version never touch it.
func withContainer(next ...cli.BeforeFunc) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if _, err := dependency.ContainerFromContext(c.Context); err != nil {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			c.Context = dependency.ContainerToContext(c.Context, container)
		}
		for _, before := range next {
			if err := before(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func closeContainer(c *cli.Context) error {
	container, err := dependency.ContainerFromContext(c.Context)
	if err != nil {
		return nil
	}
	return container.Close()
}

func newContainer(c *cli.Context) (dependency.Container, error) {
	appLogger := newLogger(c.String("log-format"), c.String("log-level"))
	pipelineConfig, err := pipelineconfig.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "failed load pipeline config")
	}
	return dependency.NewDependencyContainer(appLogger, pipelineConfig, os.Getenv("SILENT") != "")
}

// newLogger maps the debug level onto the DEBUG switch the logger reads.
func newLogger(format, level string) applogger.MainLogger {
	if strings.EqualFold(level, "debug") {
		_ = os.Setenv("DEBUG", "1")
	}
	if strings.EqualFold(format, logFormatJSON) {
		return logger.NewJSONLogger(&logger.Config{AppName: appName})
	}
	return logger.NewTextLogger()
}
