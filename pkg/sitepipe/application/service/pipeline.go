package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

type ProvisionResult struct {
	BinDir  string
	Hits    int
	Misses  int
	Entries []model.ToolCacheEntry
}

type ToolchainProvisioner interface {
	Provision(ctx context.Context, toolchain model.Toolchain) (ProvisionResult, error)
}

type DependencyInstaller interface {
	Install(ctx context.Context, dependencies model.Dependencies) error
}

type BuildResult struct {
	OutputDir string
	Digest    string
	Files     int
}

type SiteBuilder interface {
	Build(ctx context.Context, build model.Build, event model.TriggerEvent) (BuildResult, error)
}

type PublishRequest struct {
	OutputDir string
	Target    model.Publish
	Event     model.TriggerEvent
	Digest    string
}

type PublishResult struct {
	Commit   string
	Remote   string
	UpToDate bool
}

type Publisher interface {
	Publish(ctx context.Context, request PublishRequest) (PublishResult, error)
}

type RunRecorder interface {
	Record(ctx context.Context, report model.RunReport) error
}

type MetricsRecorder interface {
	ObservePhase(phase model.Phase, status model.PhaseStatus, d time.Duration)
	IncRun(outcome model.Outcome)
	AddCacheResults(hits, misses int)
	Flush() error
}

type RunOptions struct {
	// Force runs the pipeline even when the detector declines the event.
	Force bool
	// DryRun disables the publish phase regardless of the branch.
	DryRun bool
}

type Pipeline interface {
	Decide(event model.TriggerEvent) model.Decision
	Run(ctx context.Context, event model.TriggerEvent, options RunOptions) (model.RunReport, error)
	Provision(ctx context.Context) (ProvisionResult, error)
	Install(ctx context.Context) error
	Build(ctx context.Context, event model.TriggerEvent) (BuildResult, error)
	Publish(ctx context.Context, event model.TriggerEvent, force bool) (PublishResult, error)
}

func NewPipelineService(
	config model.Pipeline,
	logger applogger.Logger,
	detector Detector,
	provisioner ToolchainProvisioner,
	installer DependencyInstaller,
	builder SiteBuilder,
	publisher Publisher,
	recorder RunRecorder,
	metrics MetricsRecorder,
) Pipeline {
	if config.CanonicalBranch == "" {
		config.CanonicalBranch = model.DefaultCanonicalBranch
	}
	return &pipeline{
		config:      config,
		logger:      logger,
		detector:    detector,
		provisioner: provisioner,
		installer:   installer,
		builder:     builder,
		publisher:   publisher,
		recorder:    recorder,
		metrics:     metrics,
		now:         time.Now,
	}
}

type pipeline struct {
	config model.Pipeline

	logger      applogger.Logger
	detector    Detector
	provisioner ToolchainProvisioner
	installer   DependencyInstaller
	builder     SiteBuilder
	publisher   Publisher
	recorder    RunRecorder
	metrics     MetricsRecorder
	now         func() time.Time
}

type step struct {
	phase model.Phase
	run   func(ctx context.Context) (detail string, skipped bool, err error)
}

func (service *pipeline) Decide(event model.TriggerEvent) model.Decision {
	return service.detector.Decide(event)
}

func (service *pipeline) Run(ctx context.Context, event model.TriggerEvent, options RunOptions) (model.RunReport, error) {
	report := model.RunReport{
		ID:        uuid.NewString(),
		Event:     event,
		StartedAt: service.now(),
	}
	logger := service.logger.WithFields(applogger.Fields{"run": report.ID, "branch": event.Branch})

	// detect
	start := service.now()
	decision := service.detector.Decide(event)
	report.Decision = decision
	service.addPhase(&report, model.PhaseResult{
		Phase:    model.PhaseDetect,
		Status:   model.PhaseSucceeded,
		Duration: service.now().Sub(start),
		Detail:   decision.Reason,
	})
	if !decision.Run && !options.Force {
		logger.Info(fmt.Sprintf("pipeline not triggered: %v", decision.Reason))
		service.skipFrom(&report, 1)
		report.Outcome = model.OutcomeNotTriggered
		service.finish(ctx, logger, &report)
		return report, nil
	}
	if !decision.Run {
		logger.Info(fmt.Sprintf("pipeline forced: %v", decision.Reason))
	}

	guard := event.Branch == service.config.CanonicalBranch && !options.DryRun
	var build BuildResult
	steps := []step{
		{phase: model.PhaseProvision, run: func(ctx context.Context) (string, bool, error) {
			result, err := service.provisioner.Provision(ctx, service.config.Toolchain)
			report.CacheHits, report.CacheMisses = result.Hits, result.Misses
			return fmt.Sprintf("%v cache hits, %v cache misses", result.Hits, result.Misses), false, err
		}},
		{phase: model.PhaseInstall, run: func(ctx context.Context) (string, bool, error) {
			return service.config.Dependencies.Dir, false, service.installer.Install(ctx, service.config.Dependencies)
		}},
		{phase: model.PhaseBuild, run: func(ctx context.Context) (string, bool, error) {
			var err error
			build, err = service.builder.Build(ctx, service.config.Build, event)
			report.Digest = build.Digest
			return fmt.Sprintf("%v files, digest %v", build.Files, build.Digest), false, err
		}},
		{phase: model.PhasePublish, run: func(ctx context.Context) (string, bool, error) {
			if !guard {
				logger.Info(fmt.Sprintf("skip publish: branch %q is not %q or dry-run requested", event.Branch, service.config.CanonicalBranch))
				return "guard condition false, build verified only", true, nil
			}
			result, err := service.publisher.Publish(ctx, PublishRequest{
				OutputDir: build.OutputDir,
				Target:    service.config.Publish,
				Event:     event,
				Digest:    build.Digest,
			})
			if err != nil {
				return "", false, err
			}
			report.Published = true
			return fmt.Sprintf("%v -> %v@%v", result.Commit, result.Remote, service.config.Publish.Branch), false, nil
		}},
	}

	var runErr error
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			runErr = &PhaseError{Phase: s.phase, Err: errors.Wrap(err, "pipeline canceled")}
			service.addPhase(&report, model.PhaseResult{Phase: s.phase, Status: model.PhaseFailed, Error: runErr.Error()})
			service.skipFrom(&report, i+2)
			break
		}
		result, err := service.runStep(ctx, logger, s)
		service.addPhase(&report, result)
		if err != nil {
			runErr = &PhaseError{Phase: s.phase, Err: err}
			service.skipFrom(&report, i+2)
			break
		}
	}

	if runErr != nil {
		report.Outcome = model.OutcomeFailed
	} else {
		report.Outcome = model.OutcomeSucceeded
	}
	service.finish(ctx, logger, &report)
	return report, runErr
}

func (service *pipeline) runStep(ctx context.Context, logger applogger.Logger, s step) (model.PhaseResult, error) {
	logger.Info(fmt.Sprintf("start %v...", s.phase))
	start := service.now()
	detail, skipped, err := s.run(ctx)
	d := service.now().Sub(start)
	result := model.PhaseResult{Phase: s.phase, Duration: d, Detail: detail}
	switch {
	case err != nil:
		result.Status = model.PhaseFailed
		result.Error = err.Error()
		logger.Error(err, fmt.Sprintf("%v failed after %v", s.phase, d))
	case skipped:
		result.Status = model.PhaseSkipped
	default:
		result.Status = model.PhaseSucceeded
		logger.Info(fmt.Sprintf("done in %v", d))
	}
	return result, err
}

func (service *pipeline) addPhase(report *model.RunReport, result model.PhaseResult) {
	report.Phases = append(report.Phases, result)
	if service.metrics != nil {
		service.metrics.ObservePhase(result.Phase, result.Status, result.Duration)
	}
}

// skipFrom marks every phase from index on as skipped.
func (service *pipeline) skipFrom(report *model.RunReport, index int) {
	for _, phase := range model.Phases[min(index, len(model.Phases)):] {
		service.addPhase(report, model.PhaseResult{Phase: phase, Status: model.PhaseSkipped})
	}
}

func (service *pipeline) finish(ctx context.Context, logger applogger.Logger, report *model.RunReport) {
	report.FinishedAt = service.now()
	logger.Info(fmt.Sprintf("pipeline %v in %v", report.Outcome, report.FinishedAt.Sub(report.StartedAt)))
	if service.recorder != nil {
		// The run outcome is already decided; a history failure must not change it.
		if err := service.recorder.Record(context.WithoutCancel(ctx), *report); err != nil {
			logger.Warning(err, "failed to record run history")
		}
	}
	if service.metrics != nil {
		service.metrics.IncRun(report.Outcome)
		service.metrics.AddCacheResults(report.CacheHits, report.CacheMisses)
		if err := service.metrics.Flush(); err != nil {
			logger.Warning(err, "failed to write metrics")
		}
	}
}

func (service *pipeline) Provision(ctx context.Context) (ProvisionResult, error) {
	result, err := service.provisioner.Provision(ctx, service.config.Toolchain)
	if err != nil {
		return result, &PhaseError{Phase: model.PhaseProvision, Err: err}
	}
	return result, nil
}

func (service *pipeline) Install(ctx context.Context) error {
	err := service.installer.Install(ctx, service.config.Dependencies)
	if err != nil {
		return &PhaseError{Phase: model.PhaseInstall, Err: err}
	}
	return nil
}

func (service *pipeline) Build(ctx context.Context, event model.TriggerEvent) (BuildResult, error) {
	result, err := service.builder.Build(ctx, service.config.Build, event)
	if err != nil {
		return result, &PhaseError{Phase: model.PhaseBuild, Err: err}
	}
	return result, nil
}

func (service *pipeline) Publish(ctx context.Context, event model.TriggerEvent, force bool) (PublishResult, error) {
	if event.Branch != service.config.CanonicalBranch && !force {
		service.logger.Info(fmt.Sprintf("skip publish: branch %q is not %q", event.Branch, service.config.CanonicalBranch))
		return PublishResult{}, nil
	}
	result, err := service.publisher.Publish(ctx, PublishRequest{
		OutputDir: service.config.Build.OutputDir,
		Target:    service.config.Publish,
		Event:     event,
	})
	if err != nil {
		return result, &PhaseError{Phase: model.PhasePublish, Err: err}
	}
	return result, nil
}
