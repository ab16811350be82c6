package dependency

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	infralogger "github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

func TestContainerRoundTripsThroughContext(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDependencyContainer(infralogger.NewTextLogger(), model.Pipeline{
		RepoDir:     dir,
		Toolchain:   model.Toolchain{CacheDir: filepath.Join(dir, "cache")},
		HistoryPath: filepath.Join(dir, "history.db"),
	}, true)
	require.NoError(t, err)
	defer c.Close()

	_, err = ContainerFromContext(context.Background())
	require.Error(t, err)

	got, err := ContainerFromContext(ContainerToContext(context.Background(), c))
	require.NoError(t, err)
	require.NotNil(t, got.Pipeline())
	require.NotNil(t, got.History())
	require.Equal(t, filepath.Join(dir, "cache"), got.Cache().Dir())
}

func TestContainerWithoutHistory(t *testing.T) {
	c, err := NewDependencyContainer(infralogger.NewTextLogger(), model.Pipeline{RepoDir: t.TempDir()}, true)
	require.NoError(t, err)
	require.Nil(t, c.History())
	require.NoError(t, c.Close())
}
