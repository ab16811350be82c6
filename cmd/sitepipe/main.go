package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/config/pipelineconfig"
)

func main() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	ctx = listenOSKillSignalsContext(ctx)
	mainLogger := logger.NewTextLogger()

	// Local secrets such as the deploy token. Never overrides the environment.
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			mainLogger.Warning(err, "failed to load "+file)
		}
	}

	app := newApp()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		mainLogger.Error(err, "failed execute command "+strings.Join(os.Args, " "))
		if code, ok := command.ExitCode(err); ok && code > 0 {
			os.Exit(code)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sitepipe",
		Usage: "build and publish the project website",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   pipelineconfig.DefaultFileName,
				EnvVars: []string{"SITEPIPE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "info or debug",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				Value:   logFormatText,
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Commands: cli.Commands{
			&cli.Command{
				Name:   "run",
				Usage:  "run the whole pipeline for a push event",
				Before: withContainer(),
				After:  closeContainer,
				Flags: append(eventFlags(),
					&cli.BoolFlag{
						Name:  "force",
						Usage: "run even when no trigger path changed",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "never publish",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print the run report as JSON",
					},
				),
				Action: func(c *cli.Context) error {
					return run(c.Context, c, c.Bool("force"), c.Bool("dry-run"), c.Bool("json"))
				},
			},
			&cli.Command{
				Name:   "detect",
				Usage:  "print whether a push event triggers the pipeline",
				Before: withContainer(),
				After:  closeContainer,
				Flags: eventFlags(),
				Action: func(c *cli.Context) error {
					return detect(c.Context, c)
				},
			},
			&cli.Command{
				Name:   "provision",
				Usage:  "restore or install the build toolchain",
				Before: withContainer(),
				After:  closeContainer,
				Action: func(c *cli.Context) error {
					return provision(c.Context)
				},
			},
			&cli.Command{
				Name:  "install",
				Usage: "install the site dependencies",
				Before: withContainer(func(c *cli.Context) error {
					return provision(c.Context)
				}),
				After: closeContainer,
				Action: func(c *cli.Context) error {
					return install(c.Context)
				},
			},
			&cli.Command{
				Name:  "build",
				Usage: "build the site",
				Flags: eventFlags(),
				Before: withContainer(func(c *cli.Context) error {
					if err := provision(c.Context); err != nil {
						return err
					}
					return install(c.Context)
				}),
				After: closeContainer,
				Action: func(c *cli.Context) error {
					return build(c.Context, c)
				},
			},
			&cli.Command{
				Name:   "publish",
				Usage:  "publish an already built site",
				Before: withContainer(),
				After:  closeContainer,
				Flags: append(eventFlags(),
					&cli.BoolFlag{
						Name:  "force",
						Usage: "publish from a non-canonical branch",
					},
				),
				Action: func(c *cli.Context) error {
					return publish(c.Context, c, c.Bool("force"))
				},
			},
			&cli.Command{
				Name:  "cache",
				Usage: "inspect the toolchain cache",
				Subcommands: cli.Commands{
					&cli.Command{
						Name:   "list",
						Before: withContainer(),
						After:  closeContainer,
						Action: func(c *cli.Context) error {
							return listCache(c.Context, c)
						},
					},
					&cli.Command{
						Name:      "remove",
						ArgsUsage: "<key>",
						Before:    withContainer(),
						After:     closeContainer,
						Action: func(c *cli.Context) error {
							return removeCache(c.Context, c.Args().First())
						},
					},
				},
			},
			&cli.Command{
				Name:   "history",
				Usage:  "list recent runs",
				Before: withContainer(),
				After:  closeContainer,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},
				Action: func(c *cli.Context) error {
					return listHistory(c.Context, c, c.Int("limit"))
				},
			},
			&cli.Command{
				Name:   "watch",
				Usage:  "rebuild on local changes without publishing",
				Before: withContainer(),
				After:  closeContainer,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Value: 500 * time.Millisecond,
					},
				},
				Action: func(c *cli.Context) error {
					return watch(c.Context, c.Duration("debounce"))
				},
			},
		},
	}
}

func listenOSKillSignalsContext(ctx context.Context) context.Context {
	var cancelFunc context.CancelFunc
	ctx, cancelFunc = context.WithCancel(ctx)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ch:
			cancelFunc()
		case <-ctx.Done():
			return
		}
	}()
	return ctx
}
