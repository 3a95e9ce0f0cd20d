package runner

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"stressrig/internal/httpclient"
)

// RequestContext is the per-invocation value handed to an operation. It
// carries the invocation's cancellation signal, the worker's own random
// source, the shared transport handle, and the worker index. Created fresh
// for every iteration and owned exclusively by it.
type RequestContext struct {
	context.Context
	Rand     *rand.Rand
	Client   *http.Client
	WorkerID int
}

// Operation is one named unit of traffic-generating work. Run must honor the
// context's cancellation and may return any error; the worker loop decides
// whether that error counts as a cancellation or a failure.
type Operation struct {
	Name string
	Run  func(rc *RequestContext) error
}

// Options configure a Runner.
type Options struct {
	Target         string        // target base URL, probed before launch
	Concurrency    int           // number of worker goroutines
	Seed           int64         // base seed mixed per worker via CombineSeed
	RequestTimeout time.Duration // per-iteration deadline
	ReportInterval time.Duration // periodic snapshot cadence
	RatePerSecond  int           // optional pacing (0 means free-running)
	Operations     []Operation   // ordered operation table (required)
	Client         *http.Client  // shared transport, safe for concurrent use
	Tracer         trace.Tracer  // optional; spans wrap each iteration

	Out  io.Writer // snapshot lines and the final report
	Diag io.Writer // probe notices, failure diagnostics, shutdown warnings

	ProbeAttempts int           // connectivity probe retry budget
	ProbeSpacing  time.Duration // nominal gap between probe attempts
	GraceSlices   int           // shutdown join slices
	GraceSlice    time.Duration // duration of one join slice

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = time.Second
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Client == nil {
		// Timeout is enforced per iteration via context, not on the client.
		o.Client = httpclient.NewClient(0)
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.Diag == nil {
		o.Diag = io.Discard
	}
	if o.ProbeAttempts <= 0 {
		o.ProbeAttempts = 10
	}
	if o.ProbeSpacing <= 0 {
		o.ProbeSpacing = time.Second
	}
	if o.GraceSlices <= 0 {
		o.GraceSlices = 60
	}
	if o.GraceSlice <= 0 {
		o.GraceSlice = time.Second
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return nil
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
