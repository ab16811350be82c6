package model

type Branch = string

type EventSource = string

const (
	EventSourceGitHub EventSource = "github"
	EventSourceGit    EventSource = "git"
	EventSourceManual EventSource = "manual"
	EventSourceWatch  EventSource = "watch"
)

// TriggerEvent is the push notification a run is decided on.
type TriggerEvent struct {
	Branch       Branch
	Commit       string
	ChangedPaths []string
	Source       EventSource
}

type Trigger struct {
	// Branches are path.Match patterns; empty means the canonical branch only.
	Branches []string
	Paths    []string
	Files    []string
}

type Decision struct {
	Run     bool
	Publish bool
	Reason  string
}
