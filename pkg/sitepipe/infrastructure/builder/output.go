package builder

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// CheckOutputDir rejects an output directory that is, or contains, one of the
// protected directories. The output is removed before every build.
func CheckOutputDir(outputDir string, protected ...string) error {
	if outputDir == "" {
		return errors.New("build output directory is not configured")
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve output directory %v", outputDir)
	}
	for _, dir := range protected {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %v", dir)
		}
		if contains(out, abs) {
			return errors.Errorf("output directory %v must not contain %v", out, abs)
		}
	}
	return nil
}

// contains reports whether p is dir or lies below it.
func contains(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
