package sqlite

// migrations are executed in order by Migrate. Every statement is
// idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS workflow_runs (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'running',
		input           BLOB,
		output          BLOB,
		error           TEXT NOT NULL DEFAULT '',
		correlation_key TEXT NOT NULL DEFAULT '',
		started_at      TEXT NOT NULL,
		completed_at    TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	// One non-terminal run per (kind, correlation key). The partial index
	// makes the dedup check-and-insert a single atomic INSERT.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_runs_active_key
		ON workflow_runs (kind, correlation_key)
		WHERE state = 'running' AND correlation_key != ''`,

	`CREATE INDEX IF NOT EXISTS idx_workflow_runs_state
		ON workflow_runs (state, completed_at)`,

	`CREATE TABLE IF NOT EXISTS workflow_steps (
		id           TEXT NOT NULL,
		run_id       TEXT NOT NULL,
		step_name    TEXT NOT NULL,
		kind         TEXT NOT NULL,
		result       BLOB,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (run_id, step_name)
	)`,

	`CREATE TABLE IF NOT EXISTS workflow_wakeups (
		id         TEXT NOT NULL,
		run_id     TEXT NOT NULL,
		step_name  TEXT NOT NULL,
		fire_at    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, step_name)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_workflow_wakeups_fire_at
		ON workflow_wakeups (fire_at)`,
}
