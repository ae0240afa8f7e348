// Package jobs provides the durable workflow execution core of TechIgnite
// Jobs. It drives the two long-running processes of the job board: expiring
// a listing after a configurable number of days unless cancelled first, and
// sending a job seeker periodic digest emails over a 30-day window.
//
// The core is a library, not a service. Wire a store, register the business
// workflows, and hand trigger events to the engine:
//
//	s := memory.New()
//	eng, err := engine.Build(s, engine.WithLogger(logger))
//	flows.Register(eng, flows.Deps{Posts: posts, Sender: sender, Directory: dir}, logger)
//	eng.Start(ctx)
//
// # Architecture
//
// Each subsystem defines its own store interface (workflow runs and the step
// ledger in workflow, durable wakeups in clock) and a single backend
// implements all of them. A workflow handler is re-invoked from the top on
// every resume; completed steps replay from the ledger instead of re-running
// their side effects, and a sleep suspends the run entirely by persisting a
// wakeup and unwinding with ErrSuspended. The clock scans for due wakeups and
// resumes suspended runs, including wakeups missed while the process was down.
//
// Side effects behind the ledger run at-least-once: if a step's effect
// succeeds but the process dies before the ledger write, the step re-executes
// on replay. Recording of completion is exactly-once.
//
// All entity IDs are TypeIDs: type-prefixed, K-sortable, URL-safe.
package jobs
