package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Digest hashes a directory tree from its relative paths, file contents,
// symlink targets and executable bits. Timestamps and ownership are ignored,
// so two byte-identical trees always produce the same digest.
func Digest(root string) (string, int, error) {
	var lines []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			lines = append(lines, "l "+rel+" "+target)
		case d.IsDir():
			lines = append(lines, "d "+rel)
		default:
			sum, err := fileSum(path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			kind := "f"
			if info.Mode()&0o111 != 0 {
				kind = "x"
			}
			lines = append(lines, kind+" "+rel+" "+sum)
		}
		return nil
	})
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to hash %v", root)
	}
	sort.Strings(lines)
	files := 0
	h := sha256.New()
	for _, line := range lines {
		if !strings.HasPrefix(line, "d ") {
			files++
		}
		_, _ = io.WriteString(h, line)
		_, _ = io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)), files, nil
}

func fileSum(path string) (string, error) {
	// nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
