package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

func report(id string, started time.Time, outcome model.Outcome, phases ...model.PhaseResult) model.RunReport {
	return model.RunReport{
		ID:         id,
		Event:      model.TriggerEvent{Branch: "main", Commit: "abc", Source: model.EventSourceGitHub},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Outcome:    outcome,
		Phases:     phases,
		Digest:     "d1",
		Published:  outcome == model.OutcomeSucceeded,
	}
}

func TestRecordAndList(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Unix(1_700_000_000, 0)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, report("run-1", base, model.OutcomeSucceeded,
		model.PhaseResult{Phase: model.PhaseBuild, Status: model.PhaseSucceeded, Duration: time.Second})))
	require.NoError(t, store.Record(ctx, report("run-2", base.Add(time.Hour), model.OutcomeFailed,
		model.PhaseResult{Phase: model.PhaseInstall, Status: model.PhaseFailed, Error: "npm ERR!"})))

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, model.OutcomeFailed, runs[0].Outcome)
	require.Equal(t, model.PhaseInstall, runs[0].FailedPhase)
	require.False(t, runs[0].Published)
	require.Equal(t, "npm ERR!", runs[0].Phases[0].Error)

	require.Equal(t, "run-1", runs[1].ID)
	require.True(t, runs[1].Published)
	require.Equal(t, time.Second, runs[1].Phases[0].Duration)
	require.True(t, base.Equal(runs[1].StartedAt))

	runs, err = store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := report("same", time.Now(), model.OutcomeSucceeded)
	require.NoError(t, store.Record(context.Background(), r))
	require.Error(t, store.Record(context.Background(), r))
}
