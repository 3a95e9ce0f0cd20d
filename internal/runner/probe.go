package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// probeTarget issues lightweight GETs against target until one yields any
// HTTP response, retrying up to attempts times. Attempts are spaced by
// spacing minus the attempt's own elapsed time, clamped at zero, so slow
// networks eat into the gap rather than stretching the schedule. Exhausting
// the budget is fatal to Start.
func probeTarget(ctx context.Context, client *http.Client, target string, attempts int, spacing time.Duration, diag io.Writer) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		began := time.Now()
		err := probeOnce(ctx, client, target, spacing)
		if err == nil {
			return nil
		}
		lastErr = err
		fmt.Fprintf(diag, "probe %d/%d against %s failed: %v\n", attempt, attempts, target, err)

		if attempt == attempts {
			break
		}
		if wait := spacing - time.Since(began); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("target %s unreachable after %d probe attempts: %w", target, attempts, lastErr)
}

// probeOnce counts any HTTP response as reachable; the harness is not a
// correctness oracle, it only needs the listener up.
func probeOnce(ctx context.Context, client *http.Client, target string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
