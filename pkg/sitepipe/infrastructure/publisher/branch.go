package publisher

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/infrastructure/command"
)

const (
	DefaultTokenEnv    = "GITHUB_TOKEN"
	DefaultAuthorName  = "github-actions[bot]"
	DefaultAuthorEmail = "github-actions[bot]@users.noreply.github.com"
	DefaultMessage     = "deploy: {{.Commit}}"

	tokenUsername = "x-access-token"
	pushRemote    = "deploy"
)

// NewBranchPublisher publishes the output directory as a single orphan commit
// force-pushed to the deployment branch.
func NewBranchPublisher(
	logger applogger.Logger,
	repositoryProvider service.RepositoryProvider,
	getenv func(string) string,
) service.Publisher {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &branchPublisher{
		logger:             logger,
		repositoryProvider: repositoryProvider,
		getenv:             getenv,
		now:                time.Now,
	}
}

type branchPublisher struct {
	logger             applogger.Logger
	repositoryProvider service.RepositoryProvider
	getenv             func(string) string
	now                func() time.Time
}

func (p *branchPublisher) Publish(ctx context.Context, request service.PublishRequest) (service.PublishResult, error) {
	target := request.Target
	if target.Branch == "" {
		return service.PublishResult{}, errors.New("publish branch is not configured")
	}
	info, err := os.Stat(request.OutputDir)
	if err != nil || !info.IsDir() {
		return service.PublishResult{}, errors.Errorf("output directory %v does not exist", request.OutputDir)
	}
	remoteURL, err := p.resolveRemote(target.Remote)
	if err != nil {
		return service.PublishResult{}, err
	}

	scratch, err := os.MkdirTemp("", "sitepipe-publish-")
	if err != nil {
		return service.PublishResult{}, errors.Wrap(err, "failed to create publish workspace")
	}
	defer os.RemoveAll(scratch)

	hash, err := p.commitTree(scratch, request)
	if err != nil {
		return service.PublishResult{}, err
	}

	p.logger.Info(fmt.Sprintf("start push %v to branch \"%v\"...", hash.String()[:8], target.Branch))
	start := time.Now()
	upToDate, err := p.push(ctx, scratch, remoteURL, target)
	if err != nil {
		return service.PublishResult{}, err
	}
	p.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	return service.PublishResult{Commit: hash.String(), Remote: redact(remoteURL), UpToDate: upToDate}, nil
}

func (p *branchPublisher) commitTree(scratch string, request service.PublishRequest) (plumbing.Hash, error) {
	target := request.Target
	repo, err := git.PlainInitWithOptions(scratch, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(target.Branch)},
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "failed to init publish repository")
	}
	files, err := copyTree(request.OutputDir, scratch)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "failed to copy output directory")
	}
	if target.NoJekyll {
		if err = os.WriteFile(filepath.Join(scratch, ".nojekyll"), nil, 0o644); err != nil {
			return plumbing.ZeroHash, errors.Wrap(err, "failed to write .nojekyll")
		}
		files = appendMissing(files, ".nojekyll")
	}
	if target.CNAME != "" {
		if err = os.WriteFile(filepath.Join(scratch, "CNAME"), []byte(target.CNAME+"\n"), 0o644); err != nil {
			return plumbing.ZeroHash, errors.Wrap(err, "failed to write CNAME")
		}
		files = appendMissing(files, "CNAME")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "failed to open publish worktree")
	}
	// Files are staged one by one: adding the whole tree would apply any
	// .gitignore shipped in the output and drop the files it matches.
	for _, file := range files {
		if err = wt.AddWithOptions(&git.AddOptions{Path: file, SkipStatus: true}); err != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "failed to stage %v", file)
		}
	}

	messageTemplate := target.Message
	if messageTemplate == "" {
		messageTemplate = DefaultMessage
	}
	message, err := command.RenderString(messageTemplate, command.Variables{
		Branch: request.Event.Branch,
		Commit: request.Event.Commit,
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "invalid publish message")
	}
	author := &object.Signature{
		Name:  valueOr(target.AuthorName, DefaultAuthorName),
		Email: valueOr(target.AuthorEmail, DefaultAuthorEmail),
		When:  p.now(),
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: author, AllowEmptyCommits: true})
	return hash, errors.Wrap(err, "failed to commit output")
}

func (p *branchPublisher) push(ctx context.Context, scratch, remoteURL string, target model.Publish) (bool, error) {
	repo, err := git.PlainOpen(scratch)
	if err != nil {
		return false, errors.Wrap(err, "failed to open publish repository")
	}
	if _, err = repo.CreateRemote(&config.RemoteConfig{Name: pushRemote, URLs: []string{remoteURL}}); err != nil {
		return false, errors.Wrap(err, "failed to configure publish remote")
	}
	ref := plumbing.NewBranchReferenceName(target.Branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: pushRemote,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%v:%v", ref, ref))},
		Auth:       p.auth(remoteURL, target),
		Force:      true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return true, nil
	}
	return false, errors.Wrapf(err, "failed to push to %v", redact(remoteURL))
}

func (p *branchPublisher) auth(remoteURL string, target model.Publish) transport.AuthMethod {
	if !strings.HasPrefix(remoteURL, "http://") && !strings.HasPrefix(remoteURL, "https://") {
		return nil
	}
	token := p.getenv(valueOr(target.TokenEnv, DefaultTokenEnv))
	if token == "" {
		p.logger.Info("no deploy token found, pushing unauthenticated")
		return nil
	}
	return &http.BasicAuth{Username: tokenUsername, Password: token}
}

// resolveRemote accepts a remote name of the source repository, a URL or a
// local path.
func (p *branchPublisher) resolveRemote(remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}
	if strings.Contains(remote, "://") || strings.HasPrefix(remote, "git@") ||
		filepath.IsAbs(remote) || strings.HasPrefix(remote, ".") {
		return remote, nil
	}
	return p.repositoryProvider.RemoteURL(remote)
}

// copyTree copies src into dst and returns the relative paths of every copied
// file and symlink.
func copyTree(src, dst string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.Name() == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			files = append(files, rel)
			return os.Symlink(link, target)
		default:
			files = append(files, rel)
			return copyFile(path, target, info.Mode().Perm())
		}
	})
	return files, err
}

func appendMissing(files []string, file string) []string {
	for _, f := range files {
		if f == file {
			return files
		}
	}
	return append(files, file)
}

func copyFile(src, dst string, perm fs.FileMode) error {
	// nolint:gosec
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	// nolint:gosec
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func redact(url string) string {
	schemeEnd := strings.Index(url, "://")
	at := strings.LastIndex(url, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return url
	}
	return url[:schemeEnd+3] + "***" + url[at:]
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
