package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
)

// Run is one row of the run history.
type Run struct {
	ID          string
	Branch      string
	Commit      string
	Source      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     model.Outcome
	FailedPhase model.Phase
	Digest      string
	Published   bool
	Phases      []model.PhaseResult
}

type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (and migrates) the history database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err = store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize history schema")
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		branch TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		source TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		failed_phase TEXT NOT NULL,
		digest TEXT NOT NULL,
		published INTEGER NOT NULL,
		phases TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Record(ctx context.Context, report model.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	phases, err := json.Marshal(report.Phases)
	if err != nil {
		return errors.Wrap(err, "failed to encode phases")
	}
	failed, _ := report.FailedPhase()
	published := 0
	if report.Published {
		published = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, branch, commit_sha, source, started_at, finished_at, outcome, failed_phase, digest, published, phases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Event.Branch, report.Event.Commit, report.Event.Source,
		report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
		string(report.Outcome), string(failed), report.Digest, published, string(phases),
	)
	return errors.Wrap(err, "failed to insert run")
}

// List returns the most recent runs first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, branch, commit_sha, source, started_at, finished_at, outcome, failed_phase, digest, published, phases
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			outcome, failed   string
			published         int
			phases            string
		)
		err = rows.Scan(&r.ID, &r.Branch, &r.Commit, &r.Source, &started, &finished, &outcome, &failed, &r.Digest, &published, &phases)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.Outcome = model.Outcome(outcome)
		r.FailedPhase = model.Phase(failed)
		r.Published = published == 1
		if err = json.Unmarshal([]byte(phases), &r.Phases); err != nil {
			return nil, errors.Wrap(err, "failed to decode phases")
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
