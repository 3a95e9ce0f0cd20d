package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"stressrig/internal/metrics"
)

// reportArtifact is the JSON document written for one run.
type reportArtifact struct {
	RunID string `json:"run_id"`
	metrics.FinalStats
}

// WriteJSONReport writes the final stats to path as indented JSON. The
// artifact is guarded by a sibling lock file so overlapping invocations
// pointed at the same path do not interleave their writes.
func WriteJSONReport(path, runID string, stats metrics.FinalStats) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock report file: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(reportArtifact{RunID: runID, FinalStats: stats}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}
