package output

import (
	"fmt"
	"io"
	"sync"
)

// FailureDiagnostic is the context printed alongside one operation failure.
type FailureDiagnostic struct {
	Operation string
	WorkerID  int
	Iteration int64
	Total     int64
	Errors    int64
	Err       error
}

// FailureLogger serializes failure diagnostics onto one writer so lines
// from concurrent workers do not interleave.
type FailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFailureLogger(w io.Writer) *FailureLogger {
	if w == nil {
		w = io.Discard
	}
	return &FailureLogger{w: w}
}

// LogFailure prints one diagnostic line for a failed iteration.
func (l *FailureLogger) LogFailure(d FailureDiagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[fail] op=%s worker=%d iter=%d total=%d errors=%d: %v\n",
		d.Operation, d.WorkerID, d.Iteration, d.Total, d.Errors, d.Err)
}
