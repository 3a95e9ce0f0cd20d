package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"stressrig/internal/config"
	"stressrig/internal/dashboard"
	"stressrig/internal/httpclient"
	"stressrig/internal/output"
	"stressrig/internal/runner"
	"stressrig/internal/tracing"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	ops, err := buildOperations(cfg.Target, cfg.Ops)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal, so snapshot lines are dropped while
	// it is up; the final report still goes to stdout afterwards.
	var snapshotOut io.Writer = os.Stdout
	if cfg.Dashboard {
		snapshotOut = io.Discard
	}

	r, err := runner.New(runner.Options{
		Target:         cfg.Target,
		Concurrency:    cfg.Concurrency,
		Seed:           cfg.Seed,
		RequestTimeout: cfg.Timeout,
		ReportInterval: cfg.ReportInterval,
		RatePerSecond:  cfg.Rate,
		Operations:     ops,
		Client:         httpclient.NewClient(0),
		Tracer:         provider.Tracer(),
		Out:            snapshotOut,
		Diag:           os.Stderr,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "starting run %s against %s with %d workers\n", r.ID(), cfg.Target, cfg.Concurrency)
	if err := r.Start(ctx); err != nil {
		return err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(r.Collector(), r.ID(), cfg.ReportInterval, stop)
		if err != nil {
			r.Stop()
			return err
		}
		dash.Start()
	}

	<-ctx.Done()
	stop()
	r.Stop()
	if dash != nil {
		dash.Stop()
	}

	stats := r.FinalStats()
	output.PrintReport(os.Stdout, r.ID(), stats)
	if cfg.JSONReport != "" {
		if err := output.WriteJSONReport(cfg.JSONReport, r.ID(), stats); err != nil {
			return fmt.Errorf("writing JSON report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote JSON report to %s\n", cfg.JSONReport)
	}

	if n := r.TotalErrorCount(); n > 0 {
		return fmt.Errorf("run finished with %d failed operations", n)
	}
	return nil
}
