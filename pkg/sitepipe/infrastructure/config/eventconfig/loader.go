package eventconfig

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

const branchRefPrefix = "refs/heads/"

type Commit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// PushEvent is the subset of a GitHub push webhook payload the pipeline reads.
type PushEvent struct {
	Ref        string   `json:"ref"`
	After      string   `json:"after"`
	Commits    []Commit `json:"commits"`
	HeadCommit *Commit  `json:"head_commit"`
}

func Load(filePath string) (model.TriggerEvent, error) {
	body, err := os.ReadFile(filePath)
	if err != nil {
		return model.TriggerEvent{}, errors.Wrapf(err, "failed to read event file: %v", filePath)
	}
	var event PushEvent
	err = json.Unmarshal(body, &event)
	if err != nil {
		return model.TriggerEvent{}, errors.Wrapf(err, "failed to unmarshal event %v", filePath)
	}
	return MapToTriggerEvent(event), nil
}

// MapToTriggerEvent converts a push payload. Tag and other non-branch refs map
// to an empty branch.
func MapToTriggerEvent(event PushEvent) model.TriggerEvent {
	var branch model.Branch
	if strings.HasPrefix(event.Ref, branchRefPrefix) {
		branch = strings.TrimPrefix(event.Ref, branchRefPrefix)
	}

	commits := event.Commits
	if len(commits) == 0 && event.HeadCommit != nil {
		commits = []Commit{*event.HeadCommit}
	}
	changed := make(map[string]struct{})
	for _, commit := range commits {
		for _, paths := range [][]string{commit.Added, commit.Modified, commit.Removed} {
			for _, p := range paths {
				if p != "" {
					changed[p] = struct{}{}
				}
			}
		}
	}
	changedPaths := make([]string, 0, len(changed))
	for p := range changed {
		changedPaths = append(changedPaths, p)
	}
	sort.Strings(changedPaths)

	commit := event.After
	if commit == "" && event.HeadCommit != nil {
		commit = event.HeadCommit.ID
	}
	return model.TriggerEvent{
		Branch:       branch,
		Commit:       commit,
		ChangedPaths: changedPaths,
		Source:       model.EventSourceGitHub,
	}
}
