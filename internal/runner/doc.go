// Package runner drives sustained randomized load against a target service.
//
// A [Runner] owns one run end to end: it probes the target for reachability
// with a bounded retry budget, launches one worker goroutine per concurrency
// slot plus a periodic snapshot reporter, and on [Runner.Stop] raises a
// shared stop signal and joins the pool within a bounded grace window.
//
// Each worker selects operations from the injected table in round-robin
// order offset by its index, executes them under a per-iteration deadline,
// and reports every outcome (success, attributable cancellation, or
// failure) to the shared metrics collector. Workers never talk to each
// other; they share only the transport handle, the collector, and the stop
// signal.
//
// Randomness is deterministic per worker: [CombineSeed] mixes the worker
// index into the configured base seed, so the same seed and worker count
// reproduce the same load shape.
package runner
