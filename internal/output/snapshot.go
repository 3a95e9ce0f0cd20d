package output

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"stressrig/internal/metrics"
)

// SnapshotReporter prints a progress line on a fixed interval while the run
// is live.
type SnapshotReporter struct {
	collector *metrics.Collector
	runID     string
	interval  time.Duration
	writer    io.Writer

	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	active   int32

	lastTotal int64
}

// NewSnapshotReporter creates a reporter that prints collector snapshots at
// the given interval.
func NewSnapshotReporter(collector *metrics.Collector, runID string, interval time.Duration, writer io.Writer) *SnapshotReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &SnapshotReporter{
		collector: collector,
		runID:     runID,
		interval:  interval,
		writer:    writer,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Start begins printing snapshots in a background goroutine.
func (p *SnapshotReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

// Stop halts snapshot printing and waits for the loop to exit.
func (p *SnapshotReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *SnapshotReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			snap := p.collector.Snapshot()
			stalled := snap.Total == p.lastTotal
			p.lastTotal = snap.Total
			fmt.Fprintln(p.writer, FormatSnapshot(p.runID, snap, stalled))
		case <-p.done:
			return
		}
	}
}

// FormatSnapshot renders one progress line: timestamp, run id, total, a
// stall marker when totals have not moved since the previous line, and
// per-operation success/cancel/fail counts.
func FormatSnapshot(runID string, snap metrics.Snapshot, stalled bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] run %s total=%d", snap.Time.Format("15:04:05"), runID, snap.Total)
	if stalled {
		sb.WriteString(" (stalled)")
	}
	if snap.P99Ms > 0 {
		fmt.Fprintf(&sb, " p50=%.1fms p99=%.1fms", snap.P50Ms, snap.P99Ms)
	}
	for _, op := range snap.Ops {
		fmt.Fprintf(&sb, " | %s: %d/%d/%d", op.Name, op.Successes, op.Cancellations, op.Failures)
	}
	if snap.AddressReuse > 0 {
		fmt.Fprintf(&sb, " | addr-reuse=%d", snap.AddressReuse)
	}
	return sb.String()
}
