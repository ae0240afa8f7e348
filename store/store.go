// Package store defines the aggregate persistence interface. Each
// subsystem (workflow runs and the step ledger, durable wakeups) defines
// its own store interface; the composite Store composes them all.
// Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// Store is the aggregate persistence interface. A single backend
// implements all subsystem stores.
type Store interface {
	workflow.Store
	clock.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
