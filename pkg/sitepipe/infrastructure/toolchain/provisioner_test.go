package toolchain

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

// fakeInstaller writes every binary listed after the prefix argument into
// {prefix}/bin.
type fakeInstaller struct {
	calls    []command.Command
	paths    []string
	err      error
	binaries []string
}

func (f *fakeInstaller) Execute(_ context.Context, cmd command.Command) (string, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return "install failed", f.err
	}
	prefix := cmd.Args[len(cmd.Args)-1]
	for _, b := range f.binaries {
		if err := os.WriteFile(filepath.Join(prefix, "bin", b), []byte("#!/bin/sh\necho "+b+"\n"), 0o755); err != nil {
			return "", err
		}
	}
	return "installed", nil
}

func (f *fakeInstaller) PrependPath(dir string) {
	f.paths = append(f.paths, dir)
}

func testToolchain(t *testing.T) model.Toolchain {
	root := t.TempDir()
	return model.Toolchain{
		Platform: "linux-amd64",
		CacheDir: filepath.Join(root, "cache"),
		BinDir:   filepath.Join(root, "bin"),
		Tools: []model.Tool{{
			Name:     "bonnie",
			Version:  "0.3.2",
			Binaries: []string{"bonnie"},
			Install: model.Command{
				Executable: "cargo",
				Args:       []string{"install", "{{.Tool}}", "--version", "{{.Version}}", "--root", "{{.Prefix}}"},
			},
		}},
	}
}

func newTestProvisioner(runner command.Runner) *provisioner {
	return NewProvisioner(infralogger.NewTextLogger(), runner).(*provisioner)
}

func readDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	result := map[string]string{}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		info, err := e.Info()
		require.NoError(t, err)
		result[e.Name()] = string(body) + info.Mode().Perm().String()
	}
	return result
}

func TestProvisionMissThenHitYieldEquivalentToolchain(t *testing.T) {
	toolchain := testToolchain(t)
	runner := &fakeInstaller{binaries: []string{"bonnie"}}
	p := newTestProvisioner(runner)

	result, err := p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, 0, result.Hits)
	require.Equal(t, 1, result.Misses)
	require.Len(t, runner.calls, 1)
	require.Equal(t, "cargo", runner.calls[0].Executable)
	require.Equal(t, []string{"install", "bonnie", "--version", "0.3.2", "--root"}, runner.calls[0].Args[:5])
	afterMiss := readDir(t, toolchain.BinDir)

	require.NoError(t, os.RemoveAll(toolchain.BinDir))
	result, err = p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, 1, result.Hits)
	require.Equal(t, 0, result.Misses)
	require.Len(t, runner.calls, 1, "cache hit must not reinstall")
	require.Equal(t, afterMiss, readDir(t, toolchain.BinDir))
	require.Equal(t, []string{toolchain.BinDir, toolchain.BinDir}, runner.paths)
}

func TestProvisionUsesPlatformScopedKey(t *testing.T) {
	toolchain := testToolchain(t)
	p := newTestProvisioner(&fakeInstaller{binaries: []string{"bonnie"}})

	result, err := p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, "linux-amd64-website-bonnie", result.Entries[0].Key)

	entries, err := NewCache(toolchain.CacheDir).List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "linux-amd64-website-bonnie", entries[0].Key)
	require.Equal(t, "0.3.2", entries[0].Version)

	toolchain.Platform = "darwin-arm64"
	result, err = p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, 1, result.Misses)
}

func TestProvisionFailureLeavesNoCacheEntry(t *testing.T) {
	toolchain := testToolchain(t)
	runner := &fakeInstaller{err: errors.New("network unreachable")}
	p := newTestProvisioner(runner)

	_, err := p.Provision(context.Background(), toolchain)
	require.Error(t, err)
	require.ErrorIs(t, err, runner.err)

	entries, err := NewCache(toolchain.CacheDir).List()
	require.NoError(t, err)
	require.Empty(t, entries)
	dirEntries, err := os.ReadDir(toolchain.CacheDir)
	require.NoError(t, err)
	for _, e := range dirEntries {
		require.False(t, e.IsDir(), "unexpected leftover %v", e.Name())
	}
	require.Empty(t, runner.paths)
}

func TestProvisionMissingBinaryIsFatal(t *testing.T) {
	toolchain := testToolchain(t)
	toolchain.Tools[0].Binaries = []string{"bonnie", "bonnie-helper"}
	p := newTestProvisioner(&fakeInstaller{binaries: []string{"bonnie"}})

	_, err := p.Provision(context.Background(), toolchain)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bonnie-helper")
	_, ok, err := NewCache(toolchain.CacheDir).Get("linux-amd64-website-bonnie")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProvisionVersionChangeKeepsEntry(t *testing.T) {
	toolchain := testToolchain(t)
	runner := &fakeInstaller{binaries: []string{"bonnie"}}
	p := newTestProvisioner(runner)

	_, err := p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	toolchain.Tools[0].Version = "0.4.0"
	result, err := p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, 1, result.Hits)
	require.Len(t, runner.calls, 1)
}

func TestProvisionDefaultsBinaryToToolName(t *testing.T) {
	toolchain := testToolchain(t)
	toolchain.Tools[0].Binaries = nil
	p := newTestProvisioner(&fakeInstaller{binaries: []string{"bonnie"}})

	result, err := p.Provision(context.Background(), toolchain)
	require.NoError(t, err)
	require.Equal(t, []string{"bonnie"}, result.Entries[0].Binaries)
	_, err = os.Stat(filepath.Join(toolchain.BinDir, "bonnie"))
	require.NoError(t, err)
}
