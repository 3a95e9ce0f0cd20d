package metrics

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestCollectorConcurrentConservation(t *testing.T) {
	const workers = 8
	const iterations = 300

	ops := []string{"get", "post"}
	c := NewCollector(ops, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				opIndex := (workerID + i) % len(ops)
				switch {
				case i%3 == 0:
					c.RecordSuccess(workerID, opIndex, time.Millisecond)
				case i%5 == 0:
					c.RecordCancellation(workerID, opIndex, time.Millisecond, nil)
				default:
					c.RecordFailure(workerID, opIndex, time.Millisecond,
						fmt.Errorf("synthetic failure %d", i%4))
				}
			}
		}(w)
	}
	wg.Wait()

	const total = workers * iterations
	if got := c.Total(); got != total {
		t.Errorf("Total() = %d, want %d", got, total)
	}
	if got := c.SampleCount(); got != total {
		t.Errorf("SampleCount() = %d, want %d", got, total)
	}

	snap := c.Snapshot()
	var sum int64
	for _, op := range snap.Ops {
		sum += op.Successes + op.Cancellations + op.Failures
	}
	if sum != total {
		t.Errorf("per-op counters sum to %d, want %d", sum, total)
	}

	var wantErrs int64
	for i := 0; i < iterations; i++ {
		if i%3 != 0 && i%5 != 0 {
			wantErrs++
		}
	}
	wantErrs *= workers
	if got := c.TotalErrors(); got != wantErrs {
		t.Errorf("TotalErrors() = %d, want %d", got, wantErrs)
	}
}

func TestCollectorFailureDeduplication(t *testing.T) {
	c := NewCollector([]string{"get"}, 1)

	infoA := c.RecordFailure(0, 0, time.Millisecond, errors.New("connection refused"))
	infoB := c.RecordFailure(0, 0, time.Millisecond, errors.New("connection refused"))
	infoC := c.RecordFailure(0, 0, time.Millisecond, errors.New("connection reset"))

	if !infoA.FirstSeen {
		t.Error("first occurrence should report FirstSeen")
	}
	if infoB.FirstSeen {
		t.Error("repeat occurrence must not report FirstSeen")
	}
	if !infoC.FirstSeen {
		t.Error("distinct signature should report FirstSeen")
	}

	types := c.FailureTypes()
	if len(types) != 2 {
		t.Fatalf("got %d failure types, want 2", len(types))
	}
	// Ranked by count descending.
	if types[0].Count != 2 || types[1].Count != 1 {
		t.Errorf("counts = %d, %d; want 2, 1", types[0].Count, types[1].Count)
	}
	if types[0].Sample != "connection refused" {
		t.Errorf("sample = %q, want first occurrence text", types[0].Sample)
	}
}

func TestCollectorCancellationFiledAsCancelled(t *testing.T) {
	c := NewCollector([]string{"get"}, 1)
	c.RecordCancellation(0, 0, time.Millisecond, errors.New("context canceled"))

	if got := c.TotalErrors(); got != 0 {
		t.Errorf("cancellations must not count as errors, got %d", got)
	}
	types := c.FailureTypes()
	if len(types) != 1 {
		t.Fatalf("got %d failure types, want 1", len(types))
	}
	if types[0].Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", types[0].Cancelled)
	}
}

func TestCollectorTimelines(t *testing.T) {
	c := NewCollector([]string{"get", "post"}, 1)
	err := errors.New("boom")
	c.RecordFailure(0, 0, time.Millisecond, err)
	c.RecordFailure(0, 1, 2*time.Millisecond, err)
	c.RecordFailure(0, 1, 3*time.Millisecond, err)

	types := c.FailureTypes()
	if len(types) != 1 {
		t.Fatalf("got %d failure types, want 1", len(types))
	}
	tl := types[0].Timelines
	if len(tl["get"]) != 1 || len(tl["post"]) != 2 {
		t.Errorf("timelines get=%d post=%d, want 1 and 2", len(tl["get"]), len(tl["post"]))
	}
	if tl["post"][0].DurationMs != 2 {
		t.Errorf("event duration = %v, want 2ms", tl["post"][0].DurationMs)
	}
}

func TestCollectorAddressReuse(t *testing.T) {
	c := NewCollector([]string{"get"}, 1)

	info := c.RecordFailure(0, 0, time.Millisecond,
		fmt.Errorf("dial tcp: %w", syscall.EADDRINUSE))
	if !info.AddressReuse {
		t.Error("EADDRINUSE should be flagged as an address-reuse race")
	}

	info = c.RecordFailure(0, 0, time.Millisecond,
		errors.New("connect: cannot assign requested address"))
	if !info.AddressReuse {
		t.Error("EADDRNOTAVAIL message should be flagged as an address-reuse race")
	}

	info = c.RecordFailure(0, 0, time.Millisecond, errors.New("connection refused"))
	if info.AddressReuse {
		t.Error("unrelated failure must not be flagged")
	}

	if got := c.AddressReuseCount(); got != 2 {
		t.Errorf("AddressReuseCount() = %d, want 2", got)
	}
}

func TestCollectorFinalStats(t *testing.T) {
	c := NewCollector([]string{"get"}, 2)
	for i, ms := range []time.Duration{1, 2, 3, 4, 5} {
		c.RecordSuccess(i%2, 0, ms*time.Millisecond)
	}

	stats := c.FinalStats(2 * time.Second)
	if stats.Total != 5 {
		t.Fatalf("Total = %d, want 5", stats.Total)
	}
	if stats.RequestsPerSec != 2.5 {
		t.Errorf("RequestsPerSec = %v, want 2.5", stats.RequestsPerSec)
	}
	if stats.Latency.Count != 5 {
		t.Errorf("Latency.Count = %d, want 5", stats.Latency.Count)
	}
	if stats.Latency.P50 != 3 {
		t.Errorf("P50 = %v, want 3", stats.Latency.P50)
	}
	if stats.Latency.Max != 5 {
		t.Errorf("Max = %v, want 5", stats.Latency.Max)
	}
}

func TestCollectorFinalStatsEmpty(t *testing.T) {
	c := NewCollector([]string{"get"}, 1)
	stats := c.FinalStats(time.Second)

	if stats.Total != 0 || stats.RequestsPerSec != 0 {
		t.Errorf("empty run should report zero totals, got %+v", stats.Snapshot)
	}
	if stats.Latency.Count != 0 {
		t.Errorf("Latency.Count = %d, want 0", stats.Latency.Count)
	}
	if len(stats.FailureTypes) != 0 {
		t.Errorf("expected no failure types, got %d", len(stats.FailureTypes))
	}
}
