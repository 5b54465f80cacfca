// Package runs orchestrates run submission and re-planning on top of the run
// repository and the planner.
//
// Lifecycle:
//   - Submit saves the seeded template, generates the expanded template and
//     execution plan, stores both under fresh ids and starts logging the run.
//   - RePlan fully loads a run, re-plans it and persists the plan runtime info
//     plus the runtime info of every appended step.
//
// Mutations of one run are serialized inside the service. Callers that bypass
// the service and drive the repository or planner directly must keep at most
// one mutation in flight per run.
package runs
