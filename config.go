package jobs

import "time"

// Config holds configuration for the workflow engine.
type Config struct {
	// TickInterval is how often the durable clock scans for due wakeups.
	TickInterval time.Duration

	// ResumeConcurrency is the maximum number of runs resumed in parallel
	// by a single clock tick or a startup recovery pass.
	ResumeConcurrency int

	// MaxStepAttempts is the number of times an action step is attempted
	// before its run is marked failed. The first execution counts as
	// attempt one.
	MaxStepAttempts int

	// ShutdownTimeout is the maximum time to wait for in-flight runs to
	// reach a suspension point during graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:      1 * time.Second,
		ResumeConcurrency: 8,
		MaxStepAttempts:   3,
		ShutdownTimeout:   30 * time.Second,
	}
}
