package command

import (
	"os/exec"

	"github.com/pkg/errors"
)

// ExitCode extracts the exit status of a failed sub-process from err.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}
