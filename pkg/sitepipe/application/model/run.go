package model

import "time"

type Phase string

const (
	PhaseDetect    Phase = "detect"
	PhaseProvision Phase = "provision"
	PhaseInstall   Phase = "install"
	PhaseBuild     Phase = "build"
	PhasePublish   Phase = "publish"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseDetect, PhaseProvision, PhaseInstall, PhaseBuild, PhasePublish}

type PhaseStatus string

const (
	PhaseSucceeded PhaseStatus = "succeeded"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
	OutcomeNotTriggered Outcome = "not-triggered"
)

type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Status   PhaseStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type RunReport struct {
	ID          string
	Event       TriggerEvent
	Decision    Decision
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     Outcome
	Phases      []PhaseResult
	Digest      string
	Published   bool
	CacheHits   int
	CacheMisses int
}

// FailedPhase returns the phase that failed the run, if any.
func (r RunReport) FailedPhase() (Phase, bool) {
	for _, p := range r.Phases {
		if p.Status == PhaseFailed {
			return p.Phase, true
		}
	}
	return "", false
}
