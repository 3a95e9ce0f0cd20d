package metrics

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector aggregates operation outcomes from concurrently-running workers.
//
// Counters are plain atomics, latency samples live in per-worker shards so
// recording never contends across workers, and the failure table keys records
// by structural signature with a per-record lock. Reads produce a
// consistent-enough view for human reporting, not a linearizable snapshot.
type Collector struct {
	ops    []string
	total  atomic.Int64
	errs   atomic.Int64
	reuse  atomic.Int64
	perOp  []opCounters
	shards []*latencyShard

	failures sync.Map // fingerprint -> *FailureRecord
}

type opCounters struct {
	successes     atomic.Int64
	cancellations atomic.Int64
	failures      atomic.Int64
}

// latencyShard owns one worker's samples: the raw millisecond values for
// exact interpolated percentiles at the end of the run, plus an HDR
// histogram for cheap live quantiles.
type latencyShard struct {
	mu      sync.Mutex
	samples []float64
	hist    *hdrhistogram.Histogram
}

// newLatencyHistogram tracks latencies from 1µs up to 60s with 3 significant figures.
func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

// NewCollector creates a collector for the given operation table and worker count.
func NewCollector(operations []string, workers int) *Collector {
	if workers < 1 {
		workers = 1
	}
	shards := make([]*latencyShard, workers)
	for i := range shards {
		shards[i] = &latencyShard{hist: newLatencyHistogram()}
	}
	return &Collector{
		ops:    append([]string(nil), operations...),
		perOp:  make([]opCounters, len(operations)),
		shards: shards,
	}
}

// FailureEvent is one occurrence of a failure type on one operation.
type FailureEvent struct {
	Time       time.Time `json:"time"`
	DurationMs float64   `json:"duration_ms"`
	Cancelled  bool      `json:"cancelled"`
}

// FailureRecord groups all occurrences sharing one signature, split per
// operation index. Inserted exactly once per distinct signature; appends
// happen under the record's own lock so unrelated signatures never
// serialize each other.
type FailureRecord struct {
	sig    Signature
	count  atomic.Int64
	mu     sync.Mutex
	sample string
	events map[int][]FailureEvent
}

func (r *FailureRecord) Signature() Signature { return r.sig }
func (r *FailureRecord) Count() int64         { return r.count.Load() }

// Sample returns the error text of the first recorded occurrence.
func (r *FailureRecord) Sample() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample
}

func (r *FailureRecord) append(opIndex int, ev FailureEvent, sample string) {
	r.count.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sample == "" {
		r.sample = sample
	}
	if r.events == nil {
		r.events = make(map[int][]FailureEvent)
	}
	r.events[opIndex] = append(r.events[opIndex], ev)
}

// FailureInfo tells the caller how a recorded failure was filed.
type FailureInfo struct {
	Signature    Signature
	FirstSeen    bool
	AddressReuse bool
}

// RecordSuccess files a successful iteration.
func (c *Collector) RecordSuccess(workerID, opIndex int, latency time.Duration) {
	c.total.Add(1)
	c.perOp[opIndex].successes.Add(1)
	c.recordLatency(workerID, latency)
}

// RecordCancellation files an iteration cancelled by the stop signal or the
// request's own timeout. The causal chain still lands in the failure table,
// flagged as cancelled, so timelines show when cancellations clustered.
func (c *Collector) RecordCancellation(workerID, opIndex int, latency time.Duration, err error) {
	c.total.Add(1)
	c.perOp[opIndex].cancellations.Add(1)
	c.recordLatency(workerID, latency)
	if err != nil {
		c.file(opIndex, latency, err, true)
	}
}

// RecordFailure files a failed iteration and classifies its causal chain.
func (c *Collector) RecordFailure(workerID, opIndex int, latency time.Duration, err error) FailureInfo {
	c.total.Add(1)
	c.errs.Add(1)
	c.perOp[opIndex].failures.Add(1)
	c.recordLatency(workerID, latency)

	info := c.file(opIndex, latency, err, false)
	if isAddressReuse(err) {
		c.reuse.Add(1)
		info.AddressReuse = true
	}
	return info
}

func (c *Collector) file(opIndex int, latency time.Duration, err error, cancelled bool) FailureInfo {
	sig := Classify(err)
	key := sig.Fingerprint()

	var rec *FailureRecord
	firstSeen := false
	if v, ok := c.failures.Load(key); ok {
		rec = v.(*FailureRecord)
	} else {
		v, loaded := c.failures.LoadOrStore(key, &FailureRecord{sig: sig})
		rec = v.(*FailureRecord)
		firstSeen = !loaded
	}

	rec.append(opIndex, FailureEvent{
		Time:       time.Now(),
		DurationMs: float64(latency) / float64(time.Millisecond),
		Cancelled:  cancelled,
	}, err.Error())

	return FailureInfo{Signature: sig, FirstSeen: firstSeen}
}

func (c *Collector) recordLatency(workerID int, latency time.Duration) {
	shard := c.shards[workerID%len(c.shards)]
	us := latency.Microseconds()
	if us < shard.hist.LowestTrackableValue() {
		us = shard.hist.LowestTrackableValue()
	}
	if us > shard.hist.HighestTrackableValue() {
		us = shard.hist.HighestTrackableValue()
	}
	shard.mu.Lock()
	shard.samples = append(shard.samples, float64(latency)/float64(time.Millisecond))
	_ = shard.hist.RecordValue(us)
	shard.mu.Unlock()
}

// Total returns the number of recorded outcomes so far.
func (c *Collector) Total() int64 { return c.total.Load() }

// TotalErrors returns the number of recorded failures so far.
func (c *Collector) TotalErrors() int64 { return c.errs.Load() }

// AddressReuseCount returns how many failures were address-reuse dial races.
func (c *Collector) AddressReuseCount() int64 { return c.reuse.Load() }

// SampleCount returns the number of latency samples held across all shards.
func (c *Collector) SampleCount() int64 {
	var n int64
	for _, shard := range c.shards {
		shard.mu.Lock()
		n += int64(len(shard.samples))
		shard.mu.Unlock()
	}
	return n
}

// OpStats holds one operation's running counters.
type OpStats struct {
	Name          string `json:"name"`
	Successes     int64  `json:"successes"`
	Cancellations int64  `json:"cancellations"`
	Failures      int64  `json:"failures"`
}

// Snapshot is a point-in-time view of the running totals. Counters are read
// individually; the sum invariant holds at quiescent points only.
type Snapshot struct {
	Time         time.Time `json:"time"`
	Total        int64     `json:"total"`
	AddressReuse int64     `json:"address_reuse,omitempty"`
	Ops          []OpStats `json:"operations"`
	P50Ms        float64   `json:"p50_latency_ms"`
	P99Ms        float64   `json:"p99_latency_ms"`
}

// Snapshot captures the current totals plus live histogram quantiles.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		Time:         time.Now(),
		Total:        c.total.Load(),
		AddressReuse: c.reuse.Load(),
		Ops:          make([]OpStats, len(c.ops)),
	}
	for i := range c.perOp {
		snap.Ops[i] = OpStats{
			Name:          c.ops[i],
			Successes:     c.perOp[i].successes.Load(),
			Cancellations: c.perOp[i].cancellations.Load(),
			Failures:      c.perOp[i].failures.Load(),
		}
	}

	merged := newLatencyHistogram()
	for _, shard := range c.shards {
		shard.mu.Lock()
		merged.Merge(shard.hist)
		shard.mu.Unlock()
	}
	if merged.TotalCount() > 0 {
		snap.P50Ms = float64(merged.ValueAtQuantile(50)) / 1000
		snap.P99Ms = float64(merged.ValueAtQuantile(99)) / 1000
	}
	return snap
}

// LatencySummary holds interpolated percentiles over the raw sample set,
// in milliseconds.
type LatencySummary struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50_ms"`
	P75   float64 `json:"p75_ms"`
	P99   float64 `json:"p99_ms"`
	P999  float64 `json:"p999_ms"`
	Max   float64 `json:"max_ms"`
}

// FailureType is one distinct failure signature with its occurrence history.
type FailureType struct {
	Description string                    `json:"description"`
	Sample      string                    `json:"sample"`
	Count       int64                     `json:"count"`
	Cancelled   int64                     `json:"cancelled,omitempty"`
	Timelines   map[string][]FailureEvent `json:"timelines"`
}

// FinalStats is the end-of-run report payload.
type FinalStats struct {
	Snapshot
	Elapsed        time.Duration  `json:"-"`
	ElapsedMs      float64        `json:"elapsed_ms"`
	RequestsPerSec float64        `json:"requests_per_sec"`
	Latency        LatencySummary `json:"latency"`
	FailureTypes   []FailureType  `json:"failure_types,omitempty"`
}

// FinalStats computes the end-of-run report: exact interpolated percentiles
// over every raw sample and the failure types ranked by frequency.
func (c *Collector) FinalStats(elapsed time.Duration) FinalStats {
	stats := FinalStats{
		Snapshot:  c.Snapshot(),
		Elapsed:   elapsed,
		ElapsedMs: float64(elapsed) / float64(time.Millisecond),
	}
	if elapsed > 0 && stats.Total > 0 {
		stats.RequestsPerSec = float64(stats.Total) / elapsed.Seconds()
	}

	samples := c.mergedSamples()
	stats.Latency.Count = int64(len(samples))
	if len(samples) > 0 {
		stats.Latency.P50, _ = Percentile(samples, 0.50)
		stats.Latency.P75, _ = Percentile(samples, 0.75)
		stats.Latency.P99, _ = Percentile(samples, 0.99)
		stats.Latency.P999, _ = Percentile(samples, 0.999)
		stats.Latency.Max, _ = Percentile(samples, 1)
	}

	stats.FailureTypes = c.FailureTypes()
	return stats
}

func (c *Collector) mergedSamples() []float64 {
	var all []float64
	for _, shard := range c.shards {
		shard.mu.Lock()
		all = append(all, shard.samples...)
		shard.mu.Unlock()
	}
	return all
}

// FailureTypes returns the distinct failure signatures ranked by frequency.
func (c *Collector) FailureTypes() []FailureType {
	var types []FailureType
	c.failures.Range(func(_, v any) bool {
		rec := v.(*FailureRecord)
		ft := FailureType{
			Description: rec.sig.String(),
			Count:       rec.Count(),
			Timelines:   make(map[string][]FailureEvent),
		}
		rec.mu.Lock()
		ft.Sample = rec.sample
		for opIndex, events := range rec.events {
			name := c.opName(opIndex)
			ft.Timelines[name] = append([]FailureEvent(nil), events...)
			for _, ev := range events {
				if ev.Cancelled {
					ft.Cancelled++
				}
			}
		}
		rec.mu.Unlock()
		types = append(types, ft)
		return true
	})
	sort.Slice(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return types[i].Description < types[j].Description
	})
	return types
}

func (c *Collector) opName(i int) string {
	if i >= 0 && i < len(c.ops) {
		return c.ops[i]
	}
	return "unknown"
}

// isAddressReuse reports whether err is an ephemeral-port reuse race during
// dial. These are tallied instead of printed per-occurrence to keep the
// diagnostic stream readable under port exhaustion.
func isAddressReuse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EADDRNOTAVAIL) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "cannot assign requested address")
}
