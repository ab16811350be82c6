package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
)

type Command struct {
	WorkDir    string
	Executable string
	Args       []string
	Env        []string
	// Verbose streams the output while the command runs.
	Verbose bool
}

type Runner interface {
	Execute(ctx context.Context, command Command) (string, error)
}

// PathPrepender is implemented by runners whose PATH can be extended once
// tools are provisioned.
type PathPrepender interface {
	PrependPath(dir string)
}

func NewCommandRunner(logger applogger.Logger, silentMode bool) Runner {
	return &runner{
		logger:     logger,
		silentMode: silentMode,
	}
}

type runner struct {
	logger     applogger.Logger
	silentMode bool
	pathDirs   []string
}

func (r *runner) PrependPath(dir string) {
	for _, d := range r.pathDirs {
		if d == dir {
			return
		}
	}
	r.pathDirs = append([]string{dir}, r.pathDirs...)
}

func (r *runner) Execute(ctx context.Context, command Command) (string, error) {
	if command.Executable == "" {
		return "", errors.New("command executable can not be empty")
	}
	env := r.environ(command.Env)
	executable := command.Executable
	if !strings.ContainsRune(executable, os.PathSeparator) && len(r.pathDirs) > 0 {
		if resolved, err := lookPath(executable, env); err == nil {
			executable = resolved
		}
	}
	// nolint:gosec
	cmd := exec.CommandContext(ctx, executable, command.Args...)
	cmd.Dir = command.WorkDir
	cmd.Env = env
	r.logger.Debug(cmd.String())

	var output bytes.Buffer
	if command.Verbose && !r.silentMode {
		cmd.Stdout = io.MultiWriter(&output, os.Stdout)
		cmd.Stderr = io.MultiWriter(&output, os.Stderr)
	} else {
		cmd.Stdout = &output
		cmd.Stderr = &output
	}
	err := cmd.Run()
	if err != nil {
		return output.String(), errors.Wrapf(err, "command %v failed", strings.Join(append([]string{command.Executable}, command.Args...), " "))
	}
	return output.String(), nil
}

func (r *runner) environ(extra []string) []string {
	env := os.Environ()
	if len(r.pathDirs) > 0 {
		path := strings.Join(r.pathDirs, string(os.PathListSeparator))
		if current := os.Getenv("PATH"); current != "" {
			path += string(os.PathListSeparator) + current
		}
		env = append(env, "PATH="+path)
	}
	return append(env, extra...)
}

// lookPath resolves an executable against the PATH found in env, so freshly
// provisioned tools win over the ones installed on the host.
func lookPath(executable string, env []string) (string, error) {
	var path string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		candidate := dir + string(os.PathSeparator) + executable
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}
