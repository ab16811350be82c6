package service

import (
	"fmt"
	"path"
	"strings"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

type Detector interface {
	Decide(event model.TriggerEvent) model.Decision
	// Matches reports whether a single path is covered by the trigger paths.
	Matches(p string) bool
}

func NewDetector(canonicalBranch model.Branch, trigger model.Trigger) Detector {
	if canonicalBranch == "" {
		canonicalBranch = model.DefaultCanonicalBranch
	}
	branches := trigger.Branches
	if len(branches) == 0 {
		branches = []string{canonicalBranch}
	}
	prefixes := make([]string, 0, len(trigger.Paths))
	for _, p := range trigger.Paths {
		if n := normalizePath(p); n != "" {
			prefixes = append(prefixes, n)
		}
	}
	files := make(map[string]struct{}, len(trigger.Files))
	for _, f := range trigger.Files {
		if n := normalizePath(f); n != "" {
			files[n] = struct{}{}
		}
	}
	return &detector{
		canonicalBranch: canonicalBranch,
		branches:        branches,
		prefixes:        prefixes,
		files:           files,
	}
}

type detector struct {
	canonicalBranch model.Branch
	branches        []string
	prefixes        []string
	files           map[string]struct{}
}

func (d detector) Decide(event model.TriggerEvent) model.Decision {
	if strings.TrimSpace(event.Branch) == "" {
		return model.Decision{Reason: "event has no branch"}
	}
	if !d.branchMatches(event.Branch) {
		return model.Decision{Reason: fmt.Sprintf("branch %q is not a trigger branch", event.Branch)}
	}
	matched, ok := d.firstMatch(event.ChangedPaths)
	if !ok {
		if len(event.ChangedPaths) == 0 {
			return model.Decision{Reason: "event has no changed paths"}
		}
		return model.Decision{Reason: "no changed path matches the trigger paths"}
	}
	publish := event.Branch == d.canonicalBranch
	reason := fmt.Sprintf("%q matches the trigger paths", matched)
	if !publish {
		reason += fmt.Sprintf(", publish disabled on non-canonical branch %q", event.Branch)
	}
	return model.Decision{Run: true, Publish: publish, Reason: reason}
}

func (d detector) Matches(p string) bool {
	_, ok := d.firstMatch([]string{p})
	return ok
}

func (d detector) branchMatches(branch model.Branch) bool {
	for _, pattern := range d.branches {
		if pattern == branch {
			return true
		}
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

func (d detector) firstMatch(paths []string) (string, bool) {
	for _, raw := range paths {
		p := normalizePath(raw)
		if p == "" {
			continue
		}
		if _, ok := d.files[p]; ok {
			return p, true
		}
		for _, prefix := range d.prefixes {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return p, true
			}
		}
	}
	return "", false
}

func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}
