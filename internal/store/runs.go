package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/report"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored compliance run.
type Run struct {
	ID            string `db:"id" json:"id"`
	Seq           int64  `db:"seq" json:"seq"`
	Target        string `db:"target" json:"target"`
	TBSAVersion   string `db:"tbsa_version" json:"tbsa_version"`
	StartedAt     string `db:"started_at" json:"started_at"`
	Pass          int    `db:"pass" json:"pass"`
	Fail          int    `db:"fail" json:"fail"`
	Skip          int    `db:"skip" json:"skip"`
	Indeterminate int    `db:"indeterminate" json:"indeterminate"`
	Digest        string `db:"digest" json:"digest"`
	Token         string `db:"token" json:"token"`
}

// Summary returns the run's counts.
func (r Run) Summary() harness.Summary {
	return harness.Summary{Pass: r.Pass, Fail: r.Fail, Skip: r.Skip, Indeterminate: r.Indeterminate}
}

type resultRow struct {
	RunID      string `db:"run_id"`
	Position   int    `db:"position"`
	Test       string `db:"test"`
	Group      string `db:"grp"`
	TestID     uint32 `db:"test_id"`
	Title      string `db:"title"`
	RefTag     string `db:"ref_tag"`
	Result     string `db:"result"`
	Code       string `db:"code"`
	Checkpoint uint32 `db:"checkpoint"`
	Category   string `db:"category"`
	Defect     string `db:"defect"`
	Trace      string `db:"trace"`
}

// WriteReport stores a sealed report and its lines in one transaction.
// Writing the same run ID twice fails.
func (s *Store) WriteReport(ctx context.Context, rep *report.Report, startedAt time.Time) error {
	if rep.Digest == "" {
		return fmt.Errorf("write report %s: report is not sealed", rep.RunID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write report: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`); err != nil {
		return fmt.Errorf("write report: next seq: %w", err)
	}

	run := Run{
		ID:            rep.RunID,
		Seq:           seq,
		Target:        rep.Target,
		TBSAVersion:   rep.TBSAVersion,
		StartedAt:     startedAt.UTC().Format(time.RFC3339Nano),
		Pass:          rep.Summary.Pass,
		Fail:          rep.Summary.Fail,
		Skip:          rep.Summary.Skip,
		Indeterminate: rep.Summary.Indeterminate,
		Digest:        rep.Digest,
		Token:         rep.Token,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs
		(id, seq, target, tbsa_version, started_at, pass, fail, skip, indeterminate, digest, token)
		VALUES (:id, :seq, :target, :tbsa_version, :started_at, :pass, :fail, :skip, :indeterminate, :digest, :token)
	`, run)
	if err != nil {
		return fmt.Errorf("write report %s: %w", rep.RunID, err)
	}

	for i, l := range rep.Lines {
		trace, err := json.Marshal(l.Trace)
		if err != nil {
			return fmt.Errorf("write report %s: line %d: %w", rep.RunID, i, err)
		}
		row := resultRow{
			RunID:      rep.RunID,
			Position:   i,
			Test:       l.Test,
			Group:      l.Group,
			TestID:     l.ID,
			Title:      l.Title,
			RefTag:     l.RefTag,
			Result:     l.Result,
			Code:       l.Code,
			Checkpoint: l.Checkpoint,
			Category:   l.Category,
			Defect:     l.Defect,
			Trace:      string(trace),
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO results
			(run_id, position, test, grp, test_id, title, ref_tag, result, code, checkpoint, category, defect, trace)
			VALUES (:run_id, :position, :test, :grp, :test_id, :title, :ref_tag, :result, :code, :checkpoint, :category, :defect, :trace)
		`, row)
		if err != nil {
			return fmt.Errorf("write report %s: line %d: %w", rep.RunID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write report %s: commit: %w", rep.RunID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT * FROM runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ReadReport rebuilds the stored report for a run.
func (s *Store) ReadReport(ctx context.Context, id string) (*report.Report, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	var rows []resultRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT * FROM results WHERE run_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", id, err)
	}

	rep := &report.Report{
		RunID:       run.ID,
		Target:      run.Target,
		TBSAVersion: run.TBSAVersion,
		Lines:       make([]report.Line, 0, len(rows)),
		Summary:     run.Summary(),
		Digest:      run.Digest,
		Token:       run.Token,
	}
	for _, row := range rows {
		var trace []uint32
		if err := json.Unmarshal([]byte(row.Trace), &trace); err != nil {
			return nil, fmt.Errorf("read results %s: position %d: %w", id, row.Position, err)
		}
		if trace == nil {
			trace = []uint32{}
		}
		rep.Lines = append(rep.Lines, report.Line{
			Test:       row.Test,
			Group:      row.Group,
			ID:         row.TestID,
			Title:      row.Title,
			RefTag:     row.RefTag,
			Result:     row.Result,
			Code:       row.Code,
			Checkpoint: row.Checkpoint,
			Category:   row.Category,
			Defect:     row.Defect,
			Trace:      trace,
		})
	}
	return rep, nil
}

// TestHistory returns the stored lines of one test across runs, newest run
// first.
func (s *Store) TestHistory(ctx context.Context, test string, limit int) ([]report.Line, []string, error) {
	query := `
		SELECT results.* FROM results
		JOIN runs ON runs.id = results.run_id
		WHERE results.test = ?
		ORDER BY runs.seq DESC`
	args := []any{test}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, fmt.Errorf("test history %s: %w", test, err)
	}

	lines := make([]report.Line, len(rows))
	runIDs := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = report.Line{
			Test:       row.Test,
			Group:      row.Group,
			ID:         row.TestID,
			Title:      row.Title,
			RefTag:     row.RefTag,
			Result:     row.Result,
			Code:       row.Code,
			Checkpoint: row.Checkpoint,
			Category:   row.Category,
			Defect:     row.Defect,
		}
		runIDs[i] = row.RunID
	}
	return lines, runIDs, nil
}
