package runner

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stressrig/internal/output"
)

// runWorker is one worker's control loop: select the next operation
// round-robin offset by the worker index, execute it under the per-request
// deadline, classify the outcome, report it. Operation errors never
// terminate the loop; only the stop signal does.
func (r *Runner) runWorker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(CombineSeed(workerID, r.opt.Seed)))
	n := len(r.opt.Operations)

	for iteration := int64(0); ; iteration++ {
		if ctx.Err() != nil {
			return
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}
		r.runIteration(ctx, rng, workerID, iteration, operationIndex(workerID, iteration, n))
	}
}

// operationIndex interleaves concurrent workers across the table: worker w's
// i-th iteration runs operation (w+i) mod n.
func operationIndex(workerID int, iteration int64, numOps int) int {
	return int((int64(workerID) + iteration) % int64(numOps))
}

func (r *Runner) runIteration(ctx context.Context, rng *rand.Rand, workerID int, iteration int64, opIndex int) {
	op := r.opt.Operations[opIndex]

	reqCtx, cancelReq := context.WithTimeout(ctx, r.opt.RequestTimeout)
	defer cancelReq()

	var span trace.Span
	opCtx := reqCtx
	if r.opt.Tracer != nil {
		opCtx, span = r.opt.Tracer.Start(reqCtx, op.Name, trace.WithAttributes(
			attribute.Int("stressrig.worker", workerID),
			attribute.Int64("stressrig.iteration", iteration),
		))
		defer span.End()
	}

	rc := &RequestContext{
		Context:  opCtx,
		Rand:     rng,
		Client:   r.opt.Client,
		WorkerID: workerID,
	}

	start := time.Now()
	err := op.Run(rc)
	latency := time.Since(start)

	// Attribution facts are captured before classification so that
	// cancellation-shaped errors from elsewhere count as failures.
	stopRaised := ctx.Err() != nil
	deadlineHit := errors.Is(reqCtx.Err(), context.DeadlineExceeded)

	switch {
	case err == nil:
		r.collector.RecordSuccess(workerID, opIndex, latency)
	case attributableCancellation(err, stopRaised, deadlineHit):
		r.collector.RecordCancellation(workerID, opIndex, latency, err)
		if span != nil {
			span.SetStatus(codes.Ok, "cancelled")
		}
	default:
		info := r.collector.RecordFailure(workerID, opIndex, latency, err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "operation failed")
		}
		if !info.AddressReuse {
			r.failureLog.LogFailure(output.FailureDiagnostic{
				Operation: op.Name,
				WorkerID:  workerID,
				Iteration: iteration,
				Total:     r.collector.Total(),
				Errors:    r.collector.TotalErrors(),
				Err:       err,
			})
		}
	}
}

// attributableCancellation reports whether err is a cancellation the harness
// itself caused: the shared stop signal or the iteration's own deadline.
// Any other cancellation-shaped error is a failure.
func attributableCancellation(err error, stopRaised, deadlineHit bool) bool {
	if errors.Is(err, context.DeadlineExceeded) && deadlineHit {
		return true
	}
	if errors.Is(err, context.Canceled) && stopRaised {
		return true
	}
	return false
}
