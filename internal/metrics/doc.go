// Package metrics aggregates outcomes from concurrent stress workers.
//
// The [Collector] is the single shared sink for every worker iteration. It is
// built to stay off the hot path's critical section: totals and per-operation
// counters are atomics, latency samples are sharded per worker, and distinct
// failure signatures lock independently. Three read surfaces exist:
//
//   - [Collector.Snapshot] for the periodic progress line and dashboard,
//     using merged HDR histograms for cheap live quantiles;
//   - [Collector.FinalStats] for the end-of-run report, computing exact
//     interpolated percentiles over the raw sample set via [Percentile];
//   - the counter accessors used by lifecycle bookkeeping.
//
// [Classify] reduces an error's causal chain to a [Signature], the structural
// key under which the failure table deduplicates occurrences.
package metrics
