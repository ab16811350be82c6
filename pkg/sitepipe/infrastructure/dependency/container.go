package dependency

import (
	"context"

	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/builder"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/history"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/installer"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/metrics"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/provider"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/publisher"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/toolchain"
)

type contextKey struct{}

var dependencyContainer = contextKey{}

type Container interface {
	Config() model.Pipeline
	Logger() applogger.Logger
	Pipeline() service.Pipeline
	RepositoryProvider() service.RepositoryProvider
	Cache() *toolchain.Cache
	// History is nil when no history path is configured.
	History() *history.SQLiteStore
	Close() error
}

func NewDependencyContainer(
	logger applogger.Logger,
	pipelineConfig model.Pipeline,
	silentMode bool,
) (Container, error) {
	runner := command.NewCommandRunner(logger, silentMode)
	repositoryProvider := provider.NewRepositoryProvider(pipelineConfig.RepoDir, runner)

	var store *history.SQLiteStore
	var recorder service.RunRecorder
	if pipelineConfig.HistoryPath != "" {
		var err error
		store, err = history.NewSQLiteStore(pipelineConfig.HistoryPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open run history %v", pipelineConfig.HistoryPath)
		}
		recorder = store
	}

	pipelineService := service.NewPipelineService(
		pipelineConfig,
		logger,
		service.NewDetector(pipelineConfig.CanonicalBranch, pipelineConfig.Trigger),
		toolchain.NewProvisioner(logger, runner),
		installer.NewDependencyInstaller(logger, runner),
		builder.NewSiteBuilder(logger, repositoryProvider, runner),
		publisher.NewBranchPublisher(logger, repositoryProvider, nil),
		recorder,
		metrics.NewPrometheusRecorder(pipelineConfig.MetricsFile),
	)

	return &container{
		config:             pipelineConfig,
		logger:             logger,
		pipeline:           pipelineService,
		repositoryProvider: repositoryProvider,
		cache:              toolchain.NewCache(pipelineConfig.Toolchain.CacheDir),
		history:            store,
	}, nil
}

type container struct {
	config             model.Pipeline
	logger             applogger.Logger
	pipeline           service.Pipeline
	repositoryProvider service.RepositoryProvider
	cache              *toolchain.Cache
	history            *history.SQLiteStore
}

func (c *container) Config() model.Pipeline {
	return c.config
}

func (c *container) Logger() applogger.Logger {
	return c.logger
}

func (c *container) Pipeline() service.Pipeline {
	return c.pipeline
}

func (c *container) RepositoryProvider() service.RepositoryProvider {
	return c.repositoryProvider
}

func (c *container) Cache() *toolchain.Cache {
	return c.cache
}

func (c *container) History() *history.SQLiteStore {
	return c.history
}

func (c *container) Close() error {
	if c.history == nil {
		return nil
	}
	return c.history.Close()
}

func ContainerFromContext(ctx context.Context) (Container, error) {
	v := ctx.Value(dependencyContainer)
	if c, ok := v.(Container); ok {
		return c, nil
	}
	return nil, errors.New("dependency container not found")
}

func ContainerToContext(ctx context.Context, c Container) context.Context {
	return context.WithValue(ctx, dependencyContainer, c)
}
