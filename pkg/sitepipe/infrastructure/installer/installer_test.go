package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	infralogger "github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
)

type fakeRunner struct {
	calls      []command.Command
	err        error
	makePrefix string
}

func (f *fakeRunner) Execute(_ context.Context, cmd command.Command) (string, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return "npm ERR! 404", f.err
	}
	if f.makePrefix != "" {
		if err := os.MkdirAll(f.makePrefix, 0o755); err != nil {
			return "", err
		}
	}
	return "", nil
}

func websiteDeps(t *testing.T, withManifest bool) model.Dependencies {
	dir := t.TempDir()
	if withManifest {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"website"}`), 0o644))
	}
	return model.Dependencies{
		Dir:      dir,
		Manifest: "package.json",
		Prefix:   "node_modules",
		Install:  model.Command{Executable: "npm", Args: []string{"install", "--prefix", "{{.Prefix}}"}},
	}
}

func newInstaller(runner command.Runner) installer {
	return *NewDependencyInstaller(infralogger.NewTextLogger(), runner).(*installer)
}

func TestInstallRunsInProjectDir(t *testing.T) {
	deps := websiteDeps(t, true)
	runner := &fakeRunner{makePrefix: filepath.Join(deps.Dir, "node_modules")}

	require.NoError(t, newInstaller(runner).Install(context.Background(), deps))
	require.Len(t, runner.calls, 1)
	require.Equal(t, deps.Dir, runner.calls[0].WorkDir)
	require.Equal(t, []string{"install", "--prefix", filepath.Join(deps.Dir, "node_modules")}, runner.calls[0].Args)
}

func TestInstallIsIdempotent(t *testing.T) {
	deps := websiteDeps(t, true)
	runner := &fakeRunner{makePrefix: filepath.Join(deps.Dir, "node_modules")}
	i := newInstaller(runner)

	require.NoError(t, i.Install(context.Background(), deps))
	require.NoError(t, i.Install(context.Background(), deps))
	require.Len(t, runner.calls, 2)
}

func TestInstallRequiresManifest(t *testing.T) {
	runner := &fakeRunner{}
	err := newInstaller(runner).Install(context.Background(), websiteDeps(t, false))
	require.Error(t, err)
	require.Empty(t, runner.calls)
}

func TestInstallFailureIsReported(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	err := newInstaller(runner).Install(context.Background(), websiteDeps(t, true))
	require.Error(t, err)
	require.ErrorIs(t, err, runner.err)
}

func TestInstallRequiresPrefixAfterwards(t *testing.T) {
	err := newInstaller(&fakeRunner{}).Install(context.Background(), websiteDeps(t, true))
	require.Error(t, err)
	require.Contains(t, err.Error(), "node_modules")
}
