package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

func stage(t *testing.T, dir string, binaries ...string) string {
	t.Helper()
	staging := filepath.Join(dir, ".staging-test")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, binSubdir), 0o755))
	for _, b := range binaries {
		require.NoError(t, os.WriteFile(filepath.Join(staging, binSubdir, b), []byte(b), 0o755))
	}
	return staging
}

func TestCachePutGetRemove(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	key := model.ToolCacheKey("linux-amd64", "wasm-pack")

	_, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.False(t, ok)

	entry := model.ToolCacheEntry{Key: key, Tool: "wasm-pack", Binaries: []string{"wasm-pack"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, cache.Put(key, stage(t, dir, "wasm-pack"), entry))

	got, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Key, got.Key)
	require.Equal(t, entry.Binaries, got.Binaries)

	require.NoError(t, cache.Remove(key))
	_, ok, err = cache.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
	require.Error(t, cache.Remove(key))
}

func TestCacheGetTreatsMissingBinaryAsAbsent(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	key := "linux-amd64-website-bonnie"
	require.NoError(t, cache.Put(key, stage(t, dir, "bonnie"), model.ToolCacheEntry{Key: key, Binaries: []string{"bonnie"}}))
	require.NoError(t, os.Remove(cache.BinaryPath(key, "bonnie")))

	_, ok, err := cache.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheRemoveRejectsPathKeys(t *testing.T) {
	cache := NewCache(t.TempDir())
	for _, key := range []string{"", "..", "../etc", `a\b`} {
		require.Error(t, cache.Remove(key), "key %q", key)
	}
}

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.lock")
	first, err := acquireLock(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = acquireLock(ctx, path)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.release())
	second, err := acquireLock(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.release())
}
