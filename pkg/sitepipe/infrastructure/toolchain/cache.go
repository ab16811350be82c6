package toolchain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

const (
	manifestFile = "entry.json"
	binSubdir    = "bin"
)

// Cache stores provisioned tool binaries by key:
//
//	{dir}/
//	  {key}/
//	    entry.json
//	    bin/...
//	  {key}.lock
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) EntryPath(key string) string {
	return filepath.Join(c.dir, key)
}

func (c *Cache) LockPath(key string) string {
	return filepath.Join(c.dir, key+".lock")
}

// Get returns the entry stored under key. A manifest whose binaries are
// missing on disk is reported as absent.
func (c *Cache) Get(key string) (model.ToolCacheEntry, bool, error) {
	body, err := os.ReadFile(filepath.Join(c.EntryPath(key), manifestFile))
	if os.IsNotExist(err) {
		return model.ToolCacheEntry{}, false, nil
	}
	if err != nil {
		return model.ToolCacheEntry{}, false, errors.Wrapf(err, "failed to read cache entry %v", key)
	}
	var entry model.ToolCacheEntry
	if err = json.Unmarshal(body, &entry); err != nil {
		return model.ToolCacheEntry{}, false, errors.Wrapf(err, "failed to decode cache entry %v", key)
	}
	for _, binary := range entry.Binaries {
		if _, err = os.Stat(c.BinaryPath(key, binary)); err != nil {
			return model.ToolCacheEntry{}, false, nil
		}
	}
	return entry, true, nil
}

func (c *Cache) BinaryPath(key, binary string) string {
	return filepath.Join(c.EntryPath(key), binSubdir, binary)
}

// Put moves a staged installation prefix into place under key and writes its
// manifest last, so a partially stored entry is never visible as a hit.
func (c *Cache) Put(key, stagingDir string, entry model.ToolCacheEntry) error {
	target := c.EntryPath(key)
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrapf(err, "failed to clear cache entry %v", key)
	}
	if err := os.Rename(stagingDir, target); err != nil {
		return errors.Wrapf(err, "failed to store cache entry %v", key)
	}
	body, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode cache entry")
	}
	tmp := filepath.Join(target, manifestFile+".tmp")
	if err = os.WriteFile(tmp, body, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write cache entry %v", key)
	}
	return errors.Wrapf(os.Rename(tmp, filepath.Join(target, manifestFile)), "failed to commit cache entry %v", key)
}

func (c *Cache) List() ([]model.ToolCacheEntry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list cache %v", c.dir)
	}
	entries := make([]model.ToolCacheEntry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entry, ok, err := c.Get(d.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (c *Cache) Remove(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return errors.Errorf("invalid cache key %q", key)
	}
	if _, err := os.Stat(c.EntryPath(key)); os.IsNotExist(err) {
		return errors.Errorf("cache entry %v not found", key)
	}
	return errors.Wrapf(os.RemoveAll(c.EntryPath(key)), "failed to remove cache entry %v", key)
}
