package service

import (
	"context"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

// RepositoryProvider exposes the source repository the site is built from.
type RepositoryProvider interface {
	Path() string
	Branch() (model.Branch, error)
	HeadCommit() (string, error)
	// ChangedPaths lists paths touched between since (or the first parent
	// when empty) and HEAD.
	ChangedPaths(since string) ([]string, error)
	IsShallow() (bool, error)
	Unshallow(ctx context.Context) error
	RemoteURL(name string) (string, error)
}
