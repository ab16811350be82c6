package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"
)

const DefaultDebounce = 500 * time.Millisecond

type Options struct {
	RepoDir string
	// Roots are repository relative paths watched recursively. The repository
	// root itself is always watched, non-recursively, for top-level files.
	Roots []string
	// Ignore holds absolute directories never watched, such as the build output.
	Ignore   []string
	Match    func(relPath string) bool
	Debounce time.Duration
}

// OnChange receives a sorted batch of repository relative paths.
type OnChange func(ctx context.Context, paths []string)

type Watcher struct {
	logger   applogger.Logger
	options  Options
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

func NewWatcher(logger applogger.Logger, options Options) (*Watcher, error) {
	repoDir, err := filepath.Abs(options.RepoDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve repository directory")
	}
	options.RepoDir = repoDir
	if options.Match == nil {
		options.Match = func(string) bool { return true }
	}
	options.Ignore = append(options.Ignore, filepath.Join(repoDir, ".git"))

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		logger:   logger,
		options:  options,
		watcher:  fsWatcher,
		debounce: debounce,
	}
	if err = w.addDir(repoDir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	for _, root := range options.Roots {
		if err = w.addRoot(filepath.Join(repoDir, filepath.FromSlash(root))); err != nil {
			_ = fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is done, calling onChange for every debounced batch of
// matching changes. onChange runs on the watch loop, so changes made while it
// runs are delivered in the next batch.
func (w *Watcher) Run(ctx context.Context, onChange OnChange) error {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			rel, ok := w.handle(event)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warning(err, "file watcher error")
		case <-fire:
			fire = nil
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]struct{})
			onChange(ctx, batch)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	if w.ignored(event.Name) {
		return "", false
	}
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && w.underRoot(event.Name) {
			if err = w.addRoot(event.Name); err != nil {
				w.logger.Warning(err, fmt.Sprintf("failed to watch %v", event.Name))
			}
		}
	}
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.options.RepoDir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !w.options.Match(rel) {
		return "", false
	}
	w.logger.Debug(fmt.Sprintf("%v %v", event.Op, rel))
	return rel, true
}

func (w *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		w.logger.Info(fmt.Sprintf("skip watch root %v, it does not exist", root))
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to stat %v", root)
	}
	if !info.IsDir() {
		return w.addDir(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		return w.addDir(p)
	})
}

func (w *Watcher) addDir(dir string) error {
	return errors.Wrapf(w.watcher.Add(dir), "failed to watch %v", dir)
}

func (w *Watcher) underRoot(p string) bool {
	for _, root := range w.options.Roots {
		if within(filepath.Join(w.options.RepoDir, filepath.FromSlash(root)), p) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(p string) bool {
	for _, dir := range w.options.Ignore {
		if dir != "" && within(dir, p) {
			return true
		}
	}
	return false
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
