package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrHelpRequested is returned when the user requests help via --help.
var ErrHelpRequested = errors.New("help requested")

// Loader builds a Config from command-line arguments and an optional
// configuration file (YAML or JSON). Flags override file settings.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses args into a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			_ = cmd.Usage()
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flags := cmd.Flags()
	if helpFlag := flags.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			_ = cmd.Usage()
			return nil, ErrHelpRequested
		}
	}

	cfg := &Config{
		Concurrency:    1,
		Timeout:        10 * time.Second,
		ReportInterval: time.Second,
		Seed:           time.Now().UnixNano(),
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1},
	}

	configPath, _ := flags.GetString("config")
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	applyFlagOverrides(cfg, flags)
	return cfg, nil
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stressrig",
		Short:         "Concurrent load-generation and failure-analysis harness",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("target", "", "Target base URL to stress")
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.Int64("seed", 0, "Base random seed (0 means time-derived)")
	flags.Duration("timeout", 10*time.Second, "Per-request timeout")
	flags.Duration("report-interval", time.Second, "Interval between progress snapshots")
	flags.IntP("rate", "r", 0, "Requests per second limit across all workers (0 means unlimited)")
	flags.StringSlice("ops", nil, "Operations to run (default: all HTTP operations)")
	flags.String("json-report", "", "Write the final report as JSON to this path")
	flags.Bool("dashboard", false, "Show live terminal dashboard instead of snapshot lines")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	flags.String("trace-endpoint", "", "OTLP endpoint for trace export")
	flags.String("trace-protocol", "grpc", "OTLP transport: grpc or http")
	flags.Float64("trace-sample-rate", 1, "Trace sampling ratio between 0.0 and 1.0")
}

func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("target") {
		cfg.Target, _ = flags.GetString("target")
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("report-interval") {
		cfg.ReportInterval, _ = flags.GetDuration("report-interval")
	}
	if flags.Changed("rate") {
		cfg.Rate, _ = flags.GetInt("rate")
	}
	if flags.Changed("ops") {
		cfg.Ops, _ = flags.GetStringSlice("ops")
	}
	if flags.Changed("json-report") {
		cfg.JSONReport, _ = flags.GetString("json-report")
	}
	if flags.Changed("dashboard") {
		cfg.Dashboard, _ = flags.GetBool("dashboard")
	}
	if flags.Changed("trace-endpoint") {
		cfg.Tracing.Endpoint, _ = flags.GetString("trace-endpoint")
	}
	if flags.Changed("trace-protocol") {
		cfg.Tracing.Protocol, _ = flags.GetString("trace-protocol")
	}
	if flags.Changed("trace-sample-rate") {
		cfg.Tracing.SampleRate, _ = flags.GetFloat64("trace-sample-rate")
	}
}
