package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"stressrig/internal/metrics"
	"stressrig/internal/output"
)

// State is the lifecycle position of a Runner.
type State int

const (
	StateCreated State = iota
	StateProbing
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateProbing:
		return "probing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyStarted is returned when Start is called on a running Runner.
	ErrAlreadyStarted = errors.New("runner: already started")
	// ErrFinished is returned when Start is called after Stop.
	ErrFinished = errors.New("runner: run already finished")
	// ErrNoOperations is returned when the operation table is empty.
	ErrNoOperations = errors.New("runner: operation table is empty")
	// ErrNoTarget is returned when no target address is configured.
	ErrNoTarget = errors.New("runner: target address is required")
)

// Runner owns one load-generation run: it probes the target, drives the
// worker pool and the periodic reporter, and tears everything down
// cooperatively on Stop. All run state is scoped to the instance; nothing
// outlives it.
type Runner struct {
	opt       Options
	id        string
	collector *metrics.Collector
	limiter   *rate.Limiter

	failureLog *output.FailureLogger
	reporter   *output.SnapshotReporter

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	started time.Time
	elapsed time.Duration

	workers sync.WaitGroup
}

// New validates the options and builds a Runner in the Created state.
func New(opt Options) (*Runner, error) {
	opt.normalize()
	if opt.Target == "" {
		return nil, ErrNoTarget
	}
	if len(opt.Operations) == 0 {
		return nil, ErrNoOperations
	}

	names := make([]string, len(opt.Operations))
	for i, op := range opt.Operations {
		names[i] = op.Name
	}
	collector := metrics.NewCollector(names, opt.Concurrency)

	r := &Runner{
		opt:        opt,
		id:         ulid.Make().String(),
		collector:  collector,
		limiter:    opt.LimiterFactory(opt.RatePerSecond),
		failureLog: output.NewFailureLogger(opt.Diag),
	}
	r.reporter = output.NewSnapshotReporter(collector, r.id, opt.ReportInterval, opt.Out)
	return r, nil
}

// ID returns the run's ULID.
func (r *Runner) ID() string { return r.id }

// Collector exposes the aggregator, e.g. for the live dashboard.
func (r *Runner) Collector() *metrics.Collector { return r.collector }

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start probes the target and, on success, launches the worker pool and the
// periodic reporter. Probe-budget exhaustion is fatal and launches nothing.
// Calling Start on a running or finished Runner is a usage error that leaves
// the existing run untouched.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateCreated:
		r.state = StateProbing
	case StateStopping, StateStopped:
		r.mu.Unlock()
		return ErrFinished
	default:
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.mu.Unlock()

	if err := probeTarget(ctx, r.opt.Client, r.opt.Target, r.opt.ProbeAttempts, r.opt.ProbeSpacing, r.opt.Diag); err != nil {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		return fmt.Errorf("connectivity probe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.state != StateProbing {
		// Stop won the race during the probe; nothing was launched.
		r.mu.Unlock()
		cancel()
		return ErrFinished
	}
	r.cancel = cancel
	r.started = time.Now()
	r.state = StateRunning
	r.mu.Unlock()

	for i := 0; i < r.opt.Concurrency; i++ {
		r.workers.Add(1)
		go func(workerID int) {
			defer r.workers.Done()
			r.runWorker(runCtx, workerID)
		}(i)
	}
	r.reporter.Start()
	return nil
}

// Stop raises the shared stop signal and joins the workers in bounded
// one-slice increments, logging a notice per elapsed slice. When the grace
// window runs out it logs a warning and proceeds; workers are never
// force-killed. Idempotent, and safe to call before Start.
func (r *Runner) Stop() {
	r.mu.Lock()
	switch r.state {
	case StateCreated, StateProbing:
		// Nothing launched, nothing to join.
		r.state = StateStopped
		r.mu.Unlock()
		return
	case StateStopping, StateStopped:
		r.mu.Unlock()
		return
	}
	r.state = StateStopping
	r.elapsed = time.Since(r.started)
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	joined := false
	for slice := 1; slice <= r.opt.GraceSlices && !joined; slice++ {
		select {
		case <-done:
			joined = true
		case <-time.After(r.opt.GraceSlice):
			fmt.Fprintf(r.opt.Diag, "still waiting for workers to stop (%s elapsed)\n",
				time.Duration(slice)*r.opt.GraceSlice)
		}
	}
	if !joined {
		fmt.Fprintf(r.opt.Diag, "warning: grace window elapsed with workers still running; proceeding with shutdown\n")
	}

	r.reporter.Stop()

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
}

// Close makes a Runner safe to defer; it is Stop.
func (r *Runner) Close() error {
	r.Stop()
	return nil
}

// TotalErrorCount returns the number of recorded failures.
func (r *Runner) TotalErrorCount() int64 {
	return r.collector.TotalErrors()
}

// FinalStats computes the end-of-run statistics.
func (r *Runner) FinalStats() metrics.FinalStats {
	return r.collector.FinalStats(r.runElapsed())
}

// PrintFinalReport writes the final report to the configured output sink.
func (r *Runner) PrintFinalReport() {
	output.PrintReport(r.opt.Out, r.id, r.FinalStats())
}

func (r *Runner) runElapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	if r.state == StateStopped || r.state == StateStopping {
		return r.elapsed
	}
	return time.Since(r.started)
}
