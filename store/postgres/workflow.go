package postgres

import (
	"context"
	"fmt"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// ── workflow.Store: runs ─────────────────────────────────────────

func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_runs
			(id, kind, state, input, output, error, correlation_key,
			 started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID.String(), run.Kind, string(run.State),
		run.Input, run.Output, run.Error, run.CorrelationKey,
		run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return jobs.ErrDuplicateRun
	}
	if err != nil {
		return fmt.Errorf("jobs/postgres: create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx, selectRun+` WHERE id = $1`, runID.String())
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, jobs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: get run: %w", err)
	}
	return run, nil
}

func (s *Store) FindActiveRun(ctx context.Context, kind, correlationKey string) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx,
		selectRun+` WHERE kind = $1 AND correlation_key = $2 AND state = $3`,
		kind, correlationKey, string(workflow.RunStateRunning))
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, jobs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: find active run: %w", err)
	}
	return run, nil
}

func (s *Store) TransitionRun(ctx context.Context, runID id.RunID, from, to workflow.RunState, output []byte, errText string) (bool, error) {
	now := time.Now().UTC()
	var completedAt *time.Time
	if to.Terminal() {
		completedAt = &now
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		   SET state = $1, output = $2, error = $3, completed_at = $4, updated_at = $5
		 WHERE id = $6 AND state = $7`,
		string(to), output, errText, completedAt, now,
		runID.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("jobs/postgres: transition run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	query := selectRun + ` WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.State != "" {
		query += ` AND state = ` + arg(string(opts.State))
	}
	if opts.Kind != "" {
		query += ` AND kind = ` + arg(opts.Kind)
	}
	if !opts.CompletedBefore.IsZero() {
		query += ` AND completed_at IS NOT NULL AND completed_at < ` + arg(opts.CompletedBefore)
	}

	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ` + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobs/postgres: list runs: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/postgres: list runs: %w", err)
	}
	return runs, nil
}

// ── workflow.Store: step ledger ──────────────────────────────────

func (s *Store) RecordStep(ctx context.Context, rec *workflow.StepRecord) error {
	// Replace semantics: a replayed write after a crash between side
	// effect and ledger commit overwrites the half-recorded row.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_steps (id, run_id, step_name, kind, result, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			kind = EXCLUDED.kind,
			result = EXCLUDED.result,
			completed_at = EXCLUDED.completed_at`,
		rec.ID.String(), rec.RunID.String(), rec.StepName,
		string(rec.Kind), rec.Result, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("jobs/postgres: record step: %w", err)
	}
	return nil
}

func (s *Store) GetStep(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, step_name, kind, result, completed_at
		  FROM workflow_steps
		 WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName)
	rec, err := scanStep(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: get step: %w", err)
	}
	return rec, nil
}

func (s *Store) ListSteps(ctx context.Context, runID id.RunID) ([]*workflow.StepRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, step_name, kind, result, completed_at
		  FROM workflow_steps
		 WHERE run_id = $1
		 ORDER BY completed_at ASC`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: list steps: %w", err)
	}
	defer rows.Close()

	var recs []*workflow.StepRecord
	for rows.Next() {
		rec, scanErr := scanStep(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobs/postgres: list steps: %w", scanErr)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/postgres: list steps: %w", err)
	}
	return recs, nil
}

func (s *Store) DeleteSteps(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_steps WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("jobs/postgres: delete steps: %w", err)
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
		startedAt, createdAt, updatedAt      time.Time
		completedAt                          *time.Time
	)
	if err := row.Scan(&rawID, &kind, &state, &input, &output, &errText, &corrKey,
		&startedAt, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	runID, err := id.ParseRunID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", rawID, err)
	}

	return &workflow.Run{
		ID:             runID,
		Kind:           kind,
		State:          workflow.RunState(state),
		Input:          input,
		Output:         output,
		Error:          errText,
		CorrelationKey: corrKey,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func scanStep(row rowScanner) (*workflow.StepRecord, error) {
	var (
		rawID, rawRunID, stepName, kind string
		result                          []byte
		completedAt                     time.Time
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

	return &workflow.StepRecord{
		ID:          stepID,
		RunID:       runID,
		StepName:    stepName,
		Kind:        workflow.StepKind(kind),
		Result:      result,
		CompletedAt: completedAt,
	}, nil
}
