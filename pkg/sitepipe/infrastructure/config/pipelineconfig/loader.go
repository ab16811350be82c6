package pipelineconfig

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/builder"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/publisher"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/toolchain"
)

const (
	DefaultFileName = "sitepipe.yaml"
	DefaultCacheDir = ".sitepipe/cache"
	DefaultBinDir   = ".sitepipe/bin"
	DefaultRemote   = "origin"
)

type Command struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	Env        []string `yaml:"env"`
	WorkDir    string   `yaml:"workdir"`
}

type Trigger struct {
	Branches []string `yaml:"branches"`
	Paths    []string `yaml:"paths"`
	Files    []string `yaml:"files"`
}

type Tool struct {
	Name     string   `yaml:"name"`
	Version  string   `yaml:"version"`
	Binaries []string `yaml:"binaries"`
	Install  Command  `yaml:"install"`
}

type Toolchain struct {
	Platform string `yaml:"platform"`
	CacheDir string `yaml:"cache_dir"`
	BinDir   string `yaml:"bin_dir"`
	Tools    []Tool `yaml:"tools"`
}

type Dependencies struct {
	Dir      string  `yaml:"dir"`
	Manifest string  `yaml:"manifest"`
	Prefix   string  `yaml:"prefix"`
	Install  Command `yaml:"install"`
}

type Build struct {
	WorkDir           string  `yaml:"workdir"`
	Command           Command `yaml:"command"`
	OutputDir         string  `yaml:"output_dir"`
	FullHistory       bool    `yaml:"full_history"`
	VerifyDeterminism bool    `yaml:"verify_determinism"`
}

type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type Publish struct {
	Branch   string `yaml:"branch"`
	Remote   string `yaml:"remote"`
	TokenEnv string `yaml:"token_env"`
	Author   Author `yaml:"author"`
	Message  string `yaml:"message"`
	NoJekyll bool   `yaml:"nojekyll"`
	CNAME    string `yaml:"cname"`
}

type Config struct {
	RepoDir         string       `yaml:"repo_dir"`
	CanonicalBranch string       `yaml:"canonical_branch"`
	Trigger         Trigger      `yaml:"trigger"`
	Toolchain       Toolchain    `yaml:"toolchain"`
	Dependencies    Dependencies `yaml:"dependencies"`
	Build           Build        `yaml:"build"`
	Publish         Publish      `yaml:"publish"`
	History         string       `yaml:"history"`
	MetricsFile     string       `yaml:"metrics_file"`
}

// Load reads the pipeline config. Relative paths are resolved against the
// repository directory, which itself defaults to the directory of the file.
func Load(filePath string) (model.Pipeline, error) {
	configBody, err := os.ReadFile(filePath)
	if err != nil {
		return model.Pipeline{}, errors.Wrapf(err, "failed to read config file: %v", filePath)
	}
	var config Config
	err = yaml.Unmarshal(configBody, &config)
	if err != nil {
		return model.Pipeline{}, errors.Wrapf(err, "failed to unmarshal config %v", filePath)
	}
	baseDir, err := filepath.Abs(filepath.Dir(filePath))
	if err != nil {
		return model.Pipeline{}, errors.Wrap(err, "failed to resolve config directory")
	}
	err = assertConfig(config)
	if err != nil {
		return model.Pipeline{}, errors.Wrapf(err, "invalid config %v", filePath)
	}
	pipeline := MapToPipelineConfig(config, baseDir)
	err = builder.CheckOutputDir(pipeline.Build.OutputDir, pipeline.RepoDir, pipeline.Build.WorkDir)
	if err != nil {
		return model.Pipeline{}, errors.Wrapf(err, "invalid config %v", filePath)
	}
	return pipeline, nil
}

func MapToPipelineConfig(config Config, baseDir string) model.Pipeline {
	repoDir := resolve(baseDir, config.RepoDir)
	if repoDir == "" {
		repoDir = baseDir
	}

	tools := make([]model.Tool, 0, len(config.Toolchain.Tools))
	for _, tool := range config.Toolchain.Tools {
		tools = append(tools, model.Tool{
			Name:     tool.Name,
			Version:  tool.Version,
			Binaries: tool.Binaries,
			Install:  mapCommand(tool.Install, repoDir),
		})
	}

	dependencyDir := resolve(repoDir, config.Dependencies.Dir)
	if dependencyDir == "" {
		dependencyDir = repoDir
	}
	buildDir := resolve(repoDir, config.Build.WorkDir)
	if buildDir == "" {
		buildDir = repoDir
	}

	return model.Pipeline{
		RepoDir:         repoDir,
		CanonicalBranch: valueOr(config.CanonicalBranch, model.DefaultCanonicalBranch),
		Trigger: model.Trigger{
			Branches: config.Trigger.Branches,
			Paths:    config.Trigger.Paths,
			Files:    config.Trigger.Files,
		},
		Toolchain: model.Toolchain{
			Platform: valueOr(config.Toolchain.Platform, toolchain.DefaultPlatform()),
			CacheDir: resolve(repoDir, valueOr(config.Toolchain.CacheDir, DefaultCacheDir)),
			BinDir:   resolve(repoDir, valueOr(config.Toolchain.BinDir, DefaultBinDir)),
			Tools:    tools,
		},
		Dependencies: model.Dependencies{
			Dir:      dependencyDir,
			Manifest: config.Dependencies.Manifest,
			Prefix:   config.Dependencies.Prefix,
			Install:  mapCommand(config.Dependencies.Install, dependencyDir),
		},
		Build: model.Build{
			WorkDir:           buildDir,
			Command:           mapCommand(config.Build.Command, buildDir),
			OutputDir:         resolve(repoDir, config.Build.OutputDir),
			FullHistory:       config.Build.FullHistory,
			VerifyDeterminism: config.Build.VerifyDeterminism,
		},
		Publish: model.Publish{
			Branch:      config.Publish.Branch,
			Remote:      valueOr(config.Publish.Remote, DefaultRemote),
			TokenEnv:    valueOr(config.Publish.TokenEnv, publisher.DefaultTokenEnv),
			AuthorName:  valueOr(config.Publish.Author.Name, publisher.DefaultAuthorName),
			AuthorEmail: valueOr(config.Publish.Author.Email, publisher.DefaultAuthorEmail),
			Message:     valueOr(config.Publish.Message, publisher.DefaultMessage),
			NoJekyll:    config.Publish.NoJekyll,
			CNAME:       config.Publish.CNAME,
		},
		HistoryPath: resolve(repoDir, config.History),
		MetricsFile: resolve(repoDir, config.MetricsFile),
	}
}

func mapCommand(command Command, baseDir string) model.Command {
	return model.Command{
		WorkDir:    resolve(baseDir, command.WorkDir),
		Executable: command.Executable,
		Args:       command.Args,
		Env:        command.Env,
	}
}

func assertConfig(config Config) error {
	if len(config.Trigger.Paths) == 0 && len(config.Trigger.Files) == 0 {
		return errors.New("trigger needs at least one path or file")
	}
	if config.Build.Command.Executable == "" {
		return errors.New("build command executable is required")
	}
	if config.Build.OutputDir == "" {
		return errors.New("build output_dir is required")
	}
	if config.Publish.Branch == "" {
		return errors.New("publish branch is required")
	}
	seen := make(map[string]struct{}, len(config.Toolchain.Tools))
	for i, tool := range config.Toolchain.Tools {
		if tool.Name == "" {
			return errors.Errorf("tool #%v has no name", i+1)
		}
		if _, ok := seen[tool.Name]; ok {
			return errors.Errorf("duplicate tool %v", tool.Name)
		}
		seen[tool.Name] = struct{}{}
		if tool.Install.Executable == "" {
			return errors.Errorf("tool %v has no install command", tool.Name)
		}
	}
	if config.Dependencies.Install.Executable != "" && config.Dependencies.Manifest == "" {
		return errors.New("dependencies manifest is required with an install command")
	}
	return nil
}

// resolve makes p absolute against baseDir. Empty stays empty.
func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
