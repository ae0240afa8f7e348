// Package workflow defines workflow definitions, runs, the step ledger,
// and the runner that executes business logic with durable replay.
//
// A workflow handler is an ordinary Go function re-invoked from the top on
// every resume. Steps it issues through the *Workflow context are durably
// remembered in the step ledger: a step whose record exists replays its
// recorded result without re-executing the side effect, and the first
// unrecorded step executes for real. A Sleep does not block: it persists a
// wakeup through the clock and unwinds the handler with ErrSuspended; the
// durable clock resumes the run when the wakeup fires, even across process
// restarts.
//
// Side effects inside action steps therefore run at least once: a crash
// between the effect and the ledger write re-executes the step on replay.
// Recording of completion is exactly once per step name per run.
package workflow
