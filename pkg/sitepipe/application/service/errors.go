package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

// PhaseError attributes a terminal failure to the phase that produced it.
type PhaseError struct {
	Phase model.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%v phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// FailedPhase returns the phase recorded in err, if any.
func FailedPhase(err error) (model.Phase, bool) {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		return phaseErr.Phase, true
	}
	return "", false
}

var ErrNondeterministicBuild = errors.New("build output differs between identical builds")
