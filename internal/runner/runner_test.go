package runner

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func fastProbeOptions(target string, ops []Operation) Options {
	return Options{
		Target:        target,
		Operations:    ops,
		ProbeAttempts: 3,
		ProbeSpacing:  10 * time.Millisecond,
		GraceSlices:   100,
		GraceSlice:    50 * time.Millisecond,
	}
}

func TestRunnerLifecycle(t *testing.T) {
	srv := okServer(t)

	opt := fastProbeOptions(srv.URL, []Operation{
		{Name: "noop", Run: func(rc *RequestContext) error { return nil }},
	})
	opt.Concurrency = 4

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	if r.State() != StateCreated {
		t.Fatalf("state = %v, want created", r.State())
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.State() != StateRunning {
		t.Fatalf("state = %v, want running", r.State())
	}

	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}

	waitFor(t, 5*time.Second, func() bool { return r.Collector().Total() > 0 })

	r.Stop()
	if r.State() != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", r.State())
	}
	r.Stop() // idempotent

	if err := r.Start(context.Background()); !errors.Is(err, ErrFinished) {
		t.Fatalf("Start after Stop = %v, want ErrFinished", err)
	}

	stats := r.FinalStats()
	if stats.Total == 0 {
		t.Error("expected a nonzero total after a live run")
	}
	if r.TotalErrorCount() != 0 {
		t.Errorf("noop operations should not fail, got %d errors", r.TotalErrorCount())
	}
}

func TestRunnerStopBeforeStart(t *testing.T) {
	srv := okServer(t)
	r, err := New(fastProbeOptions(srv.URL, []Operation{
		{Name: "noop", Run: func(rc *RequestContext) error { return nil }},
	}))
	if err != nil {
		t.Fatal(err)
	}

	r.Stop()
	if r.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", r.State())
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrFinished) {
		t.Fatalf("Start after early Stop = %v, want ErrFinished", err)
	}
}

func TestNewValidation(t *testing.T) {
	op := Operation{Name: "noop", Run: func(rc *RequestContext) error { return nil }}

	if _, err := New(Options{Operations: []Operation{op}}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("missing target: got %v, want ErrNoTarget", err)
	}
	if _, err := New(Options{Target: "http://localhost"}); !errors.Is(err, ErrNoOperations) {
		t.Errorf("empty operation table: got %v, want ErrNoOperations", err)
	}
}

func TestProbeFailureIsFatal(t *testing.T) {
	var diag bytes.Buffer
	opt := fastProbeOptions("http://127.0.0.1:1", []Operation{
		{Name: "noop", Run: func(rc *RequestContext) error { return nil }},
	})
	opt.ProbeAttempts = 2
	opt.ProbeSpacing = time.Millisecond
	opt.Diag = &diag

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}

	err = r.Start(context.Background())
	if err == nil {
		t.Fatal("Start should fail when the target never answers")
	}
	if !strings.Contains(err.Error(), "connectivity probe") {
		t.Errorf("error = %v, want a connectivity probe failure", err)
	}
	if r.State() != StateStopped {
		t.Errorf("state = %v, want stopped", r.State())
	}
	if !strings.Contains(diag.String(), "probe 1/2") {
		t.Errorf("diagnostics missing per-attempt notice:\n%s", diag.String())
	}
}

func TestProbeRetriesUntilTargetIsUp(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	target := "http://" + srv.Listener.Addr().String()

	// Bring the listener up only after the first attempts have burned.
	go func() {
		time.Sleep(60 * time.Millisecond)
		srv.Start()
	}()

	opt := fastProbeOptions(target, []Operation{
		{Name: "noop", Run: func(rc *RequestContext) error { return nil }},
	})
	opt.ProbeAttempts = 50
	opt.ProbeSpacing = 20 * time.Millisecond

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start should succeed once the target comes up: %v", err)
	}
	r.Stop()
}

func TestRoundRobinOperationOrder(t *testing.T) {
	srv := okServer(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(*RequestContext) error {
		return func(rc *RequestContext) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	opt := fastProbeOptions(srv.URL, []Operation{
		{Name: "first", Run: record("first")},
		{Name: "second", Run: record("second")},
	})
	opt.Concurrency = 1

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 6
	})
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"first", "second", "first", "second", "first", "second"} {
		if order[i] != want {
			t.Fatalf("iteration %d ran %q, want %q (order: %v)", i, order[i], want, order[:6])
		}
	}
}

func TestUnattributedCancellationIsFailure(t *testing.T) {
	srv := okServer(t)

	opt := fastProbeOptions(srv.URL, []Operation{
		{Name: "liar", Run: func(rc *RequestContext) error { return context.Canceled }},
	})
	opt.Concurrency = 1

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool { return r.TotalErrorCount() > 0 })
	r.Stop()

	snap := r.Collector().Snapshot()
	if snap.Ops[0].Cancellations != 0 {
		t.Errorf("context.Canceled without a raised stop must not count as cancellation, got %d",
			snap.Ops[0].Cancellations)
	}
}

func TestDeadlineCancellationIsNotFailure(t *testing.T) {
	srv := okServer(t)

	opt := fastProbeOptions(srv.URL, []Operation{
		{Name: "slow", Run: func(rc *RequestContext) error {
			<-rc.Done()
			return rc.Err()
		}},
	})
	opt.Concurrency = 1
	opt.RequestTimeout = 20 * time.Millisecond

	r, err := New(opt)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return r.Collector().Snapshot().Ops[0].Cancellations > 0
	})
	r.Stop()

	if n := r.TotalErrorCount(); n != 0 {
		t.Errorf("deadline-attributed cancellations must not count as failures, got %d", n)
	}
}

func TestOperationIndex(t *testing.T) {
	cases := []struct {
		worker    int
		iteration int64
		numOps    int
		want      int
	}{
		{0, 0, 3, 0},
		{1, 0, 3, 1},
		{2, 0, 3, 2},
		{3, 0, 3, 0},
		{0, 1, 3, 1},
		{1, 2, 3, 0},
		{0, 5, 1, 0},
	}
	for _, tc := range cases {
		if got := operationIndex(tc.worker, tc.iteration, tc.numOps); got != tc.want {
			t.Errorf("operationIndex(%d, %d, %d) = %d, want %d",
				tc.worker, tc.iteration, tc.numOps, got, tc.want)
		}
	}
}

func TestAttributableCancellation(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		stopRaised  bool
		deadlineHit bool
		want        bool
	}{
		{"canceled with stop", context.Canceled, true, false, true},
		{"canceled without stop", context.Canceled, false, false, false},
		{"deadline with timeout", context.DeadlineExceeded, false, true, true},
		{"deadline without timeout", context.DeadlineExceeded, false, false, false},
		{"wrapped canceled with stop", errors.Join(errors.New("send"), context.Canceled), true, false, true},
		{"ordinary error", errors.New("boom"), true, true, false},
		{"nil facts ordinary error", errors.New("boom"), false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := attributableCancellation(tc.err, tc.stopRaised, tc.deadlineHit); got != tc.want {
				t.Errorf("attributableCancellation = %v, want %v", got, tc.want)
			}
		})
	}
}
