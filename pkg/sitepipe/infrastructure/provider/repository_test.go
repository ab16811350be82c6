package provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string, remove ...string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	for _, name := range remove {
		_, err = wt.Remove(name)
		require.NoError(t, err)
	}
	hash, err := wt.Commit("change", &git.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return hash
}

func initRepo(t *testing.T) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)
	return repo, dir
}

func TestChangedPathsOfRootCommitListsTree(t *testing.T) {
	repo, dir := initRepo(t)
	commitFiles(t, repo, dir, map[string]string{"docs/intro.md": "# intro", "src/lib.rs": "fn main() {}"})

	paths, err := NewRepositoryProvider(dir, nil).ChangedPaths("")
	require.NoError(t, err)
	require.Equal(t, []string{"docs/intro.md", "src/lib.rs"}, paths)
}

func TestChangedPathsAgainstParent(t *testing.T) {
	repo, dir := initRepo(t)
	commitFiles(t, repo, dir, map[string]string{"docs/intro.md": "# intro", "src/lib.rs": "fn main() {}", "README.md": "readme"})
	commitFiles(t, repo, dir, map[string]string{"website/index.css": "body {}"}, "README.md")

	paths, err := NewRepositoryProvider(dir, nil).ChangedPaths("")
	require.NoError(t, err)
	require.Equal(t, []string{"README.md", "website/index.css"}, paths)
}

func TestChangedPathsSinceRevision(t *testing.T) {
	repo, dir := initRepo(t)
	first := commitFiles(t, repo, dir, map[string]string{"a.txt": "a"})
	commitFiles(t, repo, dir, map[string]string{"docs/one.md": "1"})
	commitFiles(t, repo, dir, map[string]string{"docs/two.md": "2"})

	paths, err := NewRepositoryProvider(dir, nil).ChangedPaths(first.String())
	require.NoError(t, err)
	require.Equal(t, []string{"docs/one.md", "docs/two.md"}, paths)

	_, err = NewRepositoryProvider(dir, nil).ChangedPaths("does-not-exist")
	require.Error(t, err)
}

func TestBranchHeadAndShallow(t *testing.T) {
	repo, dir := initRepo(t)
	hash := commitFiles(t, repo, dir, map[string]string{"a.txt": "a"})
	provider := NewRepositoryProvider(dir, nil)

	branch, err := provider.Branch()
	require.NoError(t, err)
	require.Equal(t, "main", branch)

	head, err := provider.HeadCommit()
	require.NoError(t, err)
	require.Equal(t, hash.String(), head)

	shallow, err := provider.IsShallow()
	require.NoError(t, err)
	require.False(t, shallow)
}

func TestBranchEmptyOnDetachedHead(t *testing.T) {
	repo, dir := initRepo(t)
	hash := commitFiles(t, repo, dir, map[string]string{"a.txt": "a"})
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: hash}))

	branch, err := NewRepositoryProvider(dir, nil).Branch()
	require.NoError(t, err)
	require.Empty(t, branch)
}

func TestRemoteURL(t *testing.T) {
	repo, dir := initRepo(t)
	_, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"https://github.com/example/site.git"}})
	require.NoError(t, err)

	url, err := NewRepositoryProvider(dir, nil).RemoteURL("origin")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/example/site.git", url)

	_, err = NewRepositoryProvider(dir, nil).RemoteURL("upstream")
	require.Error(t, err)
}

func TestOpenFromSubdirectory(t *testing.T) {
	repo, dir := initRepo(t)
	commitFiles(t, repo, dir, map[string]string{"website/index.html": "<html></html>"})

	branch, err := NewRepositoryProvider(filepath.Join(dir, "website"), nil).Branch()
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}
