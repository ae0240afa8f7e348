package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// ── workflow.Store: runs ─────────────────────────────────────────

func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(id, kind, state, input, output, error, correlation_key,
			 started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, string(run.State),
		run.Input, run.Output, run.Error, run.CorrelationKey,
		fmtTime(run.StartedAt), fmtTimePtr(run.CompletedAt),
		fmtTime(run.CreatedAt), fmtTime(run.UpdatedAt),
	)
	if isDuplicateKey(err) {
		return jobs.ErrDuplicateRun
	}
	if err != nil {
		return fmt.Errorf("jobs/sqlite: create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		selectRun+` WHERE id = ?`, runID.String())
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, jobs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: get run: %w", err)
	}
	return run, nil
}

func (s *Store) FindActiveRun(ctx context.Context, kind, correlationKey string) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		selectRun+` WHERE kind = ? AND correlation_key = ? AND state = ?`,
		kind, correlationKey, string(workflow.RunStateRunning))
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, jobs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: find active run: %w", err)
	}
	return run, nil
}

func (s *Store) TransitionRun(ctx context.Context, runID id.RunID, from, to workflow.RunState, output []byte, errText string) (bool, error) {
	now := time.Now().UTC()
	var completedAt any
	if to.Terminal() {
		completedAt = fmtTime(now)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		   SET state = ?, output = ?, error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(to), output, errText, completedAt, fmtTime(now),
		runID.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("jobs/sqlite: transition run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobs/sqlite: transition run: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	query := selectRun + ` WHERE 1=1`
	var args []any

	if opts.State != "" {
		query += ` AND state = ?`
		args = append(args, string(opts.State))
	}
	if opts.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, opts.Kind)
	}
	if !opts.CompletedBefore.IsZero() {
		query += ` AND completed_at IS NOT NULL AND completed_at < ?`
		args = append(args, fmtTime(opts.CompletedBefore))
	}

	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobs/sqlite: list runs: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/sqlite: list runs: %w", err)
	}
	return runs, nil
}

// ── workflow.Store: step ledger ──────────────────────────────────

func (s *Store) RecordStep(ctx context.Context, rec *workflow.StepRecord) error {
	// Replace semantics: a replayed write after a crash between side
	// effect and ledger commit overwrites the half-recorded row.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_steps (id, run_id, step_name, kind, result, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			kind = excluded.kind,
			result = excluded.result,
			completed_at = excluded.completed_at`,
		rec.ID.String(), rec.RunID.String(), rec.StepName,
		string(rec.Kind), rec.Result, fmtTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("jobs/sqlite: record step: %w", err)
	}
	return nil
}

func (s *Store) GetStep(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, step_name, kind, result, completed_at
		  FROM workflow_steps
		 WHERE run_id = ? AND step_name = ?`,
		runID.String(), stepName)
	rec, err := scanStep(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: get step: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSteps(ctx context.Context, runID id.RunID) ([]*workflow.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_name, kind, result, completed_at
		  FROM workflow_steps
		 WHERE run_id = ?
		 ORDER BY completed_at ASC`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: list steps: %w", err)
	}
	defer rows.Close()

	var recs []*workflow.StepRecord
	for rows.Next() {
		rec, scanErr := scanStep(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobs/sqlite: list steps: %w", scanErr)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/sqlite: list steps: %w", err)
	}
	return recs, nil
}

func (s *Store) DeleteSteps(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("jobs/sqlite: delete steps: %w", err)
	}
	return nil
}

// ── row scanning ─────────────────────────────────────────────────

const selectRun = `
	SELECT id, kind, state, input, output, error, correlation_key,
	       started_at, completed_at, created_at, updated_at
	  FROM workflow_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*workflow.Run, error) {
	var (
		rawID, kind, state, errText, corrKey string
		input, output                        []byte
		startedAt, createdAt, updatedAt      string
		completedAt                          sql.NullString
	)
	if err := row.Scan(&rawID, &kind, &state, &input, &output, &errText, &corrKey,
		&startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	runID, err := id.ParseRunID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", rawID, err)
	}

	run := &workflow.Run{
		ID:             runID,
		Kind:           kind,
		State:          workflow.RunState(state),
		Input:          input,
		Output:         output,
		Error:          errText,
		CorrelationKey: corrKey,
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return run, nil
}

func scanStep(row rowScanner) (*workflow.StepRecord, error) {
	var (
		rawID, rawRunID, stepName, kind string
		result                          []byte
		completedAt                     string
	)
	if err := row.Scan(&rawID, &rawRunID, &stepName, &kind, &result, &completedAt); err != nil {
		return nil, err
	}

	stepID, err := id.ParseStepID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse step id %q: %w", rawID, err)
	}
	runID, err := id.ParseRunID(rawRunID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", rawRunID, err)
	}

	rec := &workflow.StepRecord{
		ID:       stepID,
		RunID:    runID,
		StepName: stepName,
		Kind:     workflow.StepKind(kind),
		Result:   result,
	}
	if rec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	return rec, nil
}
