package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"stressrig/internal/metrics"
)

// PrintReport writes the human-readable final report: totals, interpolated
// latency percentiles, and the failure types ranked by frequency with their
// per-operation timelines.
func PrintReport(w io.Writer, runID string, stats metrics.FinalStats) {
	fmt.Fprintf(w, "\n--- Stress Run %s ---\n", runID)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	if stats.AddressReuse > 0 {
		fmt.Fprintf(w, "Addr-Reuse Races:  %d\n", stats.AddressReuse)
	}

	fmt.Fprintln(w, "\nPer Operation (success/cancel/fail):")
	for _, op := range stats.Ops {
		fmt.Fprintf(w, "  - %s: %d/%d/%d\n", op.Name, op.Successes, op.Cancellations, op.Failures)
	}

	if stats.Latency.Count > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  P50:             %.2fms\n", stats.Latency.P50)
		fmt.Fprintf(w, "  P75:             %.2fms\n", stats.Latency.P75)
		fmt.Fprintf(w, "  P99:             %.2fms\n", stats.Latency.P99)
		fmt.Fprintf(w, "  P99.9:           %.2fms\n", stats.Latency.P999)
		fmt.Fprintf(w, "  Max:             %.2fms\n", stats.Latency.Max)
	}

	if len(stats.FailureTypes) > 0 {
		fmt.Fprintln(w, "\nFailure Types (ranked):")
		for i, ft := range stats.FailureTypes {
			fmt.Fprintf(w, "  %d. [%d occurrences", i+1, ft.Count)
			if ft.Cancelled > 0 {
				fmt.Fprintf(w, ", %d cancelled", ft.Cancelled)
			}
			fmt.Fprintf(w, "] %s\n", ft.Description)
			if ft.Sample != "" {
				fmt.Fprintf(w, "     sample: %s\n", truncate(ft.Sample, 200))
			}
			writeTimelines(w, ft.Timelines)
		}
	}
}

func writeTimelines(w io.Writer, timelines map[string][]metrics.FailureEvent) {
	names := make([]string, 0, len(timelines))
	for name := range timelines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		events := timelines[name]
		if len(events) == 0 {
			continue
		}
		first := events[0].Time
		last := events[len(events)-1].Time
		fmt.Fprintf(w, "     %s: %d events, %s .. %s\n",
			name, len(events), first.Format("15:04:05.000"), last.Format("15:04:05.000"))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
