package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

func websiteTrigger() model.Trigger {
	return model.Trigger{
		Paths: []string{"docs/", "examples", "./website/"},
		Files: []string{"README.md", "bonnie.toml"},
	}
}

func TestDecideRunsOnCanonicalBranchMatchingPrefix(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	decision := d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{"docs/intro.md"}})
	require.True(t, decision.Run)
	require.True(t, decision.Publish)
}

func TestDecideIgnoresUnrelatedPaths(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	for _, paths := range [][]string{
		{"packages/perseus/src/lib.rs"},
		{"websites/index.html", "docsy/readme.md"},
		{"nested/README.md"},
		{"Cargo.toml", "src/main.rs"},
	} {
		decision := d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: paths})
		assert.False(t, decision.Run, "paths %v", paths)
		assert.False(t, decision.Publish, "paths %v", paths)
	}
}

func TestDecideIgnoresNonCanonicalBranch(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	for _, branch := range []string{"feature/docs", "Main", "gh-pages", "main2"} {
		decision := d.Decide(model.TriggerEvent{Branch: branch, ChangedPaths: []string{"website/style.css"}})
		assert.False(t, decision.Run, "branch %v", branch)
	}
}

func TestDecideMatchesTopLevelFilesExactly(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	require.True(t, d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{"README.md"}}).Run)
	require.True(t, d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{"/bonnie.toml"}}).Run)
	require.False(t, d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{"README.md.bak"}}).Run)
}

func TestDecideNormalizesPaths(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	for _, p := range []string{"./docs/intro.md", "website\\src\\index.css", "/examples/basic/main.rs", "website", "docs/../website/x"} {
		assert.True(t, d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{p}}).Run, "path %v", p)
	}
}

func TestDecideMalformedEventDoesNotRun(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	for _, event := range []model.TriggerEvent{
		{},
		{Branch: "main"},
		{Branch: "  ", ChangedPaths: []string{"docs/intro.md"}},
		{Branch: "main", ChangedPaths: []string{"", " ", "."}},
	} {
		decision := d.Decide(event)
		assert.False(t, decision.Run, "event %+v", event)
		assert.NotEmpty(t, decision.Reason)
	}
}

func TestDecideExtraTriggerBranchesBuildWithoutPublish(t *testing.T) {
	trigger := websiteTrigger()
	trigger.Branches = []string{"main", "feature/*"}
	d := NewDetector("main", trigger)

	decision := d.Decide(model.TriggerEvent{Branch: "feature/new-theme", ChangedPaths: []string{"website/style.css"}})
	require.True(t, decision.Run)
	require.False(t, decision.Publish)

	decision = d.Decide(model.TriggerEvent{Branch: "main", ChangedPaths: []string{"website/style.css"}})
	require.True(t, decision.Publish)
}

func TestNewDetectorDefaultsCanonicalBranch(t *testing.T) {
	d := NewDetector("", websiteTrigger())
	require.True(t, d.Decide(model.TriggerEvent{Branch: model.DefaultCanonicalBranch, ChangedPaths: []string{"docs/a.md"}}).Run)
}

func TestMatchesSinglePath(t *testing.T) {
	d := NewDetector("main", websiteTrigger())
	assert.True(t, d.Matches("website/index.html"))
	assert.True(t, d.Matches("README.md"))
	assert.False(t, d.Matches("docs-old/a.md"))
	assert.False(t, d.Matches(""))
}
