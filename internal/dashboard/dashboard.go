// Package dashboard renders a live terminal view of a stress run.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"stressrig/internal/metrics"
)

// Dashboard shows collector snapshots in a terminal UI, refreshed on a
// fixed cadence. Pressing q or Ctrl-C invokes the shutdown callback.
type Dashboard struct {
	collector    *metrics.Collector
	runID        string
	interval     time.Duration
	shutdownFunc func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	grid        *ui.Grid
	summaryPara *widgets.Paragraph
	latencyPara *widgets.Paragraph
	opList      *widgets.List
	failureList *widgets.List

	startTime time.Time
	lastSnap  metrics.Snapshot
}

// New initializes the terminal UI and builds the dashboard widgets.
func New(collector *metrics.Collector, runID string, interval time.Duration, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:    collector,
		runID:        runID,
		interval:     interval,
		shutdownFunc: shutdownFunc,
		ctx:          ctx,
		cancel:       cancel,
		startTime:    time.Now(),
	}
	d.initWidgets()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run " + d.runID
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.opList = widgets.NewList()
	d.opList.Title = "Operations (success/cancel/fail)"
	d.opList.Rows = []string{"waiting for data"}
	d.opList.TextStyle = ui.NewStyle(ui.ColorGreen)
	d.opList.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failure Types"
	d.failureList.Rows = []string{"No failures"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan

	d.grid = ui.NewGrid()
	termWidth, termHeight := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.25,
			ui.NewCol(0.5, d.summaryPara),
			ui.NewCol(0.5, d.latencyPara),
		),
		ui.NewRow(0.35, ui.NewCol(1.0, d.opList)),
		ui.NewRow(0.4, ui.NewCol(1.0, d.failureList)),
	)
}

// Start begins the update loop in a background goroutine.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop tears down the update loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give the terminal time to restore.
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.update()
	ui.Render(d.grid)

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Wait for Stop to cancel the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(d.grid)
			}
		case <-ticker.C:
			d.update()
			ui.Render(d.grid)
		}
	}
}

func (d *Dashboard) update() {
	snap := d.collector.Snapshot()
	elapsed := time.Since(d.startTime)

	rate := 0.0
	if dt := snap.Time.Sub(d.lastSnap.Time); dt > 0 && !d.lastSnap.Time.IsZero() {
		rate = float64(snap.Total-d.lastSnap.Total) / dt.Seconds()
	}
	d.lastSnap = snap

	d.summaryPara.Text = summaryText(snap, elapsed, rate)
	d.latencyPara.Text = latencyText(snap)
	d.opList.Rows = opRows(snap)
	d.failureList.Rows = failureRows(d.collector.FailureTypes())
}

func summaryText(snap metrics.Snapshot, elapsed time.Duration, rate float64) string {
	lines := []string{
		fmt.Sprintf("Elapsed: %s", elapsed.Round(time.Second)),
		fmt.Sprintf("Total: %d", snap.Total),
		fmt.Sprintf("Rate: %.1f req/s", rate),
	}
	if snap.AddressReuse > 0 {
		lines = append(lines, fmt.Sprintf("Addr-reuse races: %d", snap.AddressReuse))
	}
	return strings.Join(lines, "\n")
}

func latencyText(snap metrics.Snapshot) string {
	if snap.Total == 0 {
		return "no samples yet"
	}
	return fmt.Sprintf("P50: %.1fms\nP99: %.1fms", snap.P50Ms, snap.P99Ms)
}

func opRows(snap metrics.Snapshot) []string {
	if len(snap.Ops) == 0 {
		return []string{"no operations"}
	}
	rows := make([]string, len(snap.Ops))
	for i, op := range snap.Ops {
		rows[i] = fmt.Sprintf("%s: %d/%d/%d", op.Name, op.Successes, op.Cancellations, op.Failures)
	}
	return rows
}

func failureRows(types []metrics.FailureType) []string {
	if len(types) == 0 {
		return []string{"No failures"}
	}
	rows := make([]string, 0, len(types))
	for i, ft := range types {
		if i >= 10 {
			rows = append(rows, fmt.Sprintf("... and %d more", len(types)-i))
			break
		}
		desc := ft.Description
		if len(desc) > 100 {
			desc = desc[:100] + "..."
		}
		rows = append(rows, fmt.Sprintf("[%d] %s", ft.Count, desc))
	}
	return rows
}
