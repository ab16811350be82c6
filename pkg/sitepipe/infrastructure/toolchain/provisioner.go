package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
)

// DefaultPlatform identifies the host the tools were built for.
func DefaultPlatform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

func NewProvisioner(logger applogger.Logger, runner command.Runner) service.ToolchainProvisioner {
	return &provisioner{
		logger: logger,
		runner: runner,
		now:    time.Now,
	}
}

type provisioner struct {
	logger applogger.Logger
	runner command.Runner
	now    func() time.Time
}

func (p *provisioner) Provision(ctx context.Context, toolchain model.Toolchain) (service.ProvisionResult, error) {
	platform := toolchain.Platform
	if platform == "" {
		platform = DefaultPlatform()
	}
	result := service.ProvisionResult{BinDir: toolchain.BinDir}
	for _, dir := range []string{toolchain.CacheDir, toolchain.BinDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, errors.Wrapf(err, "failed to create %v", dir)
		}
	}
	cache := NewCache(toolchain.CacheDir)
	for _, tool := range toolchain.Tools {
		entry, hit, err := p.provisionTool(ctx, cache, platform, toolchain.BinDir, tool)
		if err != nil {
			return result, err
		}
		if hit {
			result.Hits++
		} else {
			result.Misses++
		}
		result.Entries = append(result.Entries, entry)
	}
	if prepender, ok := p.runner.(command.PathPrepender); ok {
		prepender.PrependPath(toolchain.BinDir)
	}
	return result, nil
}

func (p *provisioner) provisionTool(
	ctx context.Context,
	cache *Cache,
	platform string,
	binDir string,
	tool model.Tool,
) (model.ToolCacheEntry, bool, error) {
	key := model.ToolCacheKey(platform, tool.Name)
	logger := p.logger.WithFields(applogger.Fields{"tool": tool.Name, "key": key})

	lock, err := acquireLock(ctx, cache.LockPath(key))
	if err != nil {
		return model.ToolCacheEntry{}, false, err
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			logger.Warning(releaseErr, "failed to release cache lock")
		}
	}()

	entry, hit, err := cache.Get(key)
	if err != nil {
		return model.ToolCacheEntry{}, false, err
	}
	if hit {
		if entry.Version != tool.Version {
			logger.Warning(
				errors.Errorf("cached version %q differs from configured %q", entry.Version, tool.Version),
				"keep cached tool, remove the cache entry to reinstall",
			)
		}
		logger.Info("tool cache hit")
		return entry, true, restore(cache, key, entry.Binaries, binDir)
	}

	logger.Info(fmt.Sprintf("tool cache miss, installing %v %v...", tool.Name, tool.Version))
	start := time.Now()
	entry, err = p.install(ctx, cache, key, platform, binDir, tool)
	if err != nil {
		return model.ToolCacheEntry{}, false, err
	}
	logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	return entry, false, restore(cache, key, entry.Binaries, binDir)
}

func (p *provisioner) install(
	ctx context.Context,
	cache *Cache,
	key, platform, binDir string,
	tool model.Tool,
) (model.ToolCacheEntry, error) {
	binaries := tool.Binaries
	if len(binaries) == 0 {
		binaries = []string{tool.Name}
	}
	staging := filepath.Join(cache.Dir(), ".staging-"+uuid.NewString())
	if err := os.MkdirAll(filepath.Join(staging, binSubdir), 0o755); err != nil {
		return model.ToolCacheEntry{}, errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	cmd, err := command.Render(tool.Install, command.Variables{
		Platform: platform,
		Prefix:   staging,
		BinDir:   binDir,
		Tool:     tool.Name,
		Version:  tool.Version,
	})
	if err != nil {
		return model.ToolCacheEntry{}, errors.Wrapf(err, "invalid install command for tool %v", tool.Name)
	}
	cmd.Verbose = true
	output, err := p.runner.Execute(ctx, cmd)
	if err != nil {
		p.logger.Debug(output)
		return model.ToolCacheEntry{}, errors.Wrapf(err, "failed to install tool %v", tool.Name)
	}
	for _, binary := range binaries {
		if _, err = os.Stat(filepath.Join(staging, binSubdir, binary)); err != nil {
			return model.ToolCacheEntry{}, errors.Errorf("tool %v installed without expected binary %v", tool.Name, binary)
		}
	}
	entry := model.ToolCacheEntry{
		Key:       key,
		Tool:      tool.Name,
		Version:   tool.Version,
		Platform:  platform,
		Binaries:  binaries,
		CreatedAt: p.now().UTC(),
	}
	if err = cache.Put(key, staging, entry); err != nil {
		return model.ToolCacheEntry{}, err
	}
	return entry, nil
}

// restore copies cached binaries into binDir; both the hit and the miss path
// end here.
func restore(cache *Cache, key string, binaries []string, binDir string) error {
	for _, binary := range binaries {
		if err := copyExecutable(cache.BinaryPath(key, binary), filepath.Join(binDir, binary)); err != nil {
			return errors.Wrapf(err, "failed to restore %v from cache entry %v", binary, key)
		}
	}
	return nil
}

func copyExecutable(src, dst string) error {
	// nolint:gosec
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".tmp-" + uuid.NewString()
	// nolint:gosec
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
