package postgres

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_wakeups (id, run_id, step_name, fire_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, step_name) DO NOTHING`,
		w.ID.String(), w.RunID.String(), w.StepName, w.FireAt, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("jobs/postgres: schedule wakeup: %w", err)
	}
	return nil
}

func (s *Store) DueWakeups(ctx context.Context, now time.Time, limit int) ([]*clock.Wakeup, error) {
	query := `
		SELECT id, run_id, step_name, fire_at, created_at
		  FROM workflow_wakeups
		 WHERE fire_at <= $1
		 ORDER BY fire_at ASC`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs/postgres: due wakeups: %w", err)
	}
	defer rows.Close()

	var wakeups []*clock.Wakeup
	for rows.Next() {
		var (
			rawID, rawRunID, stepName string
			fireAt, createdAt         time.Time
		)
		if err := rows.Scan(&rawID, &rawRunID, &stepName, &fireAt, &createdAt); err != nil {
			return nil, fmt.Errorf("jobs/postgres: due wakeups: %w", err)
		}

		wakeupID, err := id.ParseWakeupID(rawID)
		if err != nil {
			return nil, fmt.Errorf("jobs/postgres: parse wakeup id %q: %w", rawID, err)
		}
		runID, err := id.ParseRunID(rawRunID)
		if err != nil {
			return nil, fmt.Errorf("jobs/postgres: parse run id %q: %w", rawRunID, err)
		}

		wakeups = append(wakeups, &clock.Wakeup{
			ID:        wakeupID,
			RunID:     runID,
			StepName:  stepName,
			FireAt:    fireAt,
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs/postgres: due wakeups: %w", err)
	}
	return wakeups, nil
}

func (s *Store) DeleteWakeup(ctx context.Context, runID id.RunID, stepName string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_wakeups WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName)
	if err != nil {
		return fmt.Errorf("jobs/postgres: delete wakeup: %w", err)
	}
	return nil
}

func (s *Store) DeleteWakeupsForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_wakeups WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("jobs/postgres: delete wakeups for run: %w", err)
	}
	return nil
}

func (s *Store) HasWakeup(ctx context.Context, runID id.RunID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflow_wakeups WHERE run_id = $1)`,
		runID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("jobs/postgres: has wakeup: %w", err)
	}
	return exists, nil
}
