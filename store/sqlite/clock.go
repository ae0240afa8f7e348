package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/id"
)

// ── clock.Store ──────────────────────────────────────────────────

func (s *Store) ScheduleWakeup(ctx context.Context, w *clock.Wakeup) error {
	// Keep-existing semantics: a replayed sleep must not move the fire
	// time that the first execution armed.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_wakeups (id, run_id, step_name, fire_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		w.ID.String(), w.RunID.String(), w.StepName,
		fmtTime(w.FireAt), fmtTime(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("jobs/sqlite: schedule wakeup: %w", err)
	}
	return nil
}

func (s *Store) DueWakeups(ctx context.Context, now time.Time, limit int) ([]*clock.Wakeup, error) {
	query := `
		SELECT id, run_id, step_name, fire_at, created_at
		  FROM workflow_wakeups
		 WHERE fire_at <= ?
		 ORDER BY fire_at ASC`
	args := []any{fmtTime(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs/sqlite: due wakeups: %w", err)
	}
	defer rows.Close()

	var wakeups []*clock.Wakeup
	for rows.Next() {
		var (
			rawID, rawRunID, stepName string
			fireAt, createdAt         string
		)
		if err := rows.Scan(&rawID, &rawRunID, &stepName, &fireAt, &createdAt); err != nil {
			return nil, fmt.Errorf("jobs/sqlite: due wakeups: %w", err)
		}

		wakeupID, err := id.ParseWakeupID(rawID)
		if err != nil {
			return nil, fmt.Errorf("jobs/sqlite: parse wakeup id %q: %w", rawID, err)
		}
		runID, err := id.ParseRunID(rawRunID)
		if err != nil {
			return nil, fmt.Errorf("jobs/sqlite: parse run id %q: %w", rawRunID, err)
		}

		w := &clock.Wakeup{ID: wakeupID, RunID: runID, StepName: stepName}
		if w.FireAt, err = parseTime(fireAt); err != nil {
			return nil, fmt.Errorf("jobs/sqlite: due wakeups: %w", err)
		}
		if w.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("jobs/sqlite: due wakeups: %w", err)
		}
		wakeups = append(wakeups, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/sqlite: due wakeups: %w", err)
	}
	return wakeups, nil
}

func (s *Store) DeleteWakeup(ctx context.Context, runID id.RunID, stepName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_wakeups WHERE run_id = ? AND step_name = ?`,
		runID.String(), stepName)
	if err != nil {
		return fmt.Errorf("jobs/sqlite: delete wakeup: %w", err)
	}
	return nil
}

func (s *Store) DeleteWakeupsForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_wakeups WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("jobs/sqlite: delete wakeups for run: %w", err)
	}
	return nil
}

func (s *Store) HasWakeup(ctx context.Context, runID id.RunID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_wakeups WHERE run_id = ?`,
		runID.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("jobs/sqlite: has wakeup: %w", err)
	}
	return n > 0, nil
}
