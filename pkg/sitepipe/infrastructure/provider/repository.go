package provider

import (
	"context"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
)

func NewRepositoryProvider(
	repoDir string,
	runner command.Runner,
) service.RepositoryProvider {
	return &repositoryProvider{
		repoDir: repoDir,
		runner:  runner,
	}
}

type repositoryProvider struct {
	repoDir string
	runner  command.Runner
}

func (provider repositoryProvider) Path() string {
	return provider.repoDir
}

func (provider repositoryProvider) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(provider.repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	return repo, errors.Wrapf(err, "failed to open repository %v", provider.repoDir)
}

// Branch returns the checked out branch, or an empty name on a detached HEAD.
func (provider repositoryProvider) Branch() (model.Branch, error) {
	repo, err := provider.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD")
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

func (provider repositoryProvider) HeadCommit() (string, error) {
	repo, err := provider.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD")
	}
	return head.Hash().String(), nil
}

func (provider repositoryProvider) ChangedPaths(since string) ([]string, error) {
	repo, err := provider.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve HEAD")
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load HEAD commit")
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load HEAD tree")
	}

	var baseTree *object.Tree
	switch {
	case since != "":
		hash, err := repo.ResolveRevision(plumbing.Revision(since))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve revision %v", since)
		}
		base, err := repo.CommitObject(*hash)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load commit %v", since)
		}
		if baseTree, err = base.Tree(); err != nil {
			return nil, errors.Wrapf(err, "failed to load tree of %v", since)
		}
	case headCommit.NumParents() > 0:
		parent, err := headCommit.Parent(0)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load parent commit")
		}
		if baseTree, err = parent.Tree(); err != nil {
			return nil, errors.Wrap(err, "failed to load parent tree")
		}
	default:
		return treeFiles(headTree)
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		return nil, errors.Wrap(err, "failed to diff trees")
	}
	set := make(map[string]struct{}, len(changes))
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name != "" {
				set[name] = struct{}{}
			}
		}
	}
	return sortedKeys(set), nil
}

func (provider repositoryProvider) IsShallow() (bool, error) {
	repo, err := provider.open()
	if err != nil {
		return false, err
	}
	shallow, err := repo.Storer.Shallow()
	if err != nil {
		return false, errors.Wrap(err, "failed to read shallow commits")
	}
	return len(shallow) > 0, nil
}

// Unshallow fetches the complete history of a shallow clone.
func (provider repositoryProvider) Unshallow(ctx context.Context) error {
	_, err := provider.runner.Execute(ctx, command.Command{
		WorkDir:    provider.repoDir,
		Executable: "git",
		Args:       []string{"fetch", "--unshallow", "--tags"},
		Verbose:    true,
	})
	return errors.Wrapf(err, "failed to fetch full history of %v", provider.repoDir)
}

func (provider repositoryProvider) RemoteURL(name string) (string, error) {
	repo, err := provider.open()
	if err != nil {
		return "", err
	}
	remote, err := repo.Remote(name)
	if err != nil {
		return "", errors.Wrapf(err, "remote %v not found", name)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.Errorf("remote %v has no url", name)
	}
	return urls[0], nil
}

func treeFiles(tree *object.Tree) ([]string, error) {
	set := make(map[string]struct{})
	err := tree.Files().ForEach(func(file *object.File) error {
		set[file.Name] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tree files")
	}
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
