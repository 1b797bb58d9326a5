package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sparse-blobpool/blobsim/sim"
	"github.com/sparse-blobpool/blobsim/sim/metrics"
	"github.com/sparse-blobpool/blobsim/sim/scenario"
	"github.com/sparse-blobpool/blobsim/sim/trace"
)

// envPrefix namespaces environment overrides, e.g. BLOBSIM_SEED.
const envPrefix = "BLOBSIM"

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "blobsim",
	Short: "Discrete-event simulator for sparse blobpool propagation",
}

// runCmd builds a scenario from the config file and flags, runs it and logs a summary
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the blob propagation simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := bindFlags(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(v.GetString("log"), v.GetString("log-file"))
		if err != nil {
			return err
		}
		cfg, err := resolveConfig(cmd, v)
		if err != nil {
			return err
		}
		opts := runOptions{
			Workload: scenario.WorkloadConfig{
				Count:    v.GetInt("txs"),
				Interval: v.GetFloat64("tx-interval"),
				Start:    1,
			},
			Trace: v.GetBool("trace"),
			Prom:  v.GetBool("prom"),
		}
		_, err = runScenario(cfg, opts, logger)
		return err
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(defaultConfigCmd)
}

// addRunFlags declares the run flags with defaults taken from DefaultConfig.
func addRunFlags(cmd *cobra.Command) {
	def := sim.DefaultConfig()
	w := scenario.DefaultWorkload()

	cmd.Flags().String("config", "", "YAML configuration file overlaid on the defaults")
	cmd.Flags().Int64("seed", def.Seed, "Seed for every random stream")
	cmd.Flags().Float64("duration", def.Duration, "Simulated seconds to run")
	cmd.Flags().Int("nodes", def.Topology.NodeCount, "Number of nodes in the mesh")
	cmd.Flags().Int("txs", w.Count, "Number of blob transactions to inject")
	cmd.Flags().Float64("tx-interval", w.Interval, "Seconds between injected transactions")
	cmd.Flags().String("policy", def.Slot.InclusionPolicy, "Inclusion policy (conservative, optimistic, proactive)")
	cmd.Flags().String("log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().String("log-file", "", "Also write logs to this file")
	cmd.Flags().Bool("trace", false, "Record every dispatched event and log a trace summary")
	cmd.Flags().Bool("prom", false, "Export run counters through a Prometheus registry and log them")
}

// bindFlags registers the command's flags with a fresh viper instance that
// also reads BLOBSIM_* environment variables.
func bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

// overridden reports whether the user set name on the command line or in
// the environment. Flag defaults never override the config file.
func overridden(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return true
	}
	env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	_, ok := os.LookupEnv(env)
	return ok
}

// resolveConfig loads the config file, or the defaults, and applies the
// explicitly set flags on top.
func resolveConfig(cmd *cobra.Command, v *viper.Viper) (sim.SimulationConfig, error) {
	cfg := sim.DefaultConfig()
	if path := v.GetString("config"); path != "" {
		loaded, err := sim.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	if overridden(cmd, "seed") {
		cfg.Seed = v.GetInt64("seed")
	}
	if overridden(cmd, "duration") {
		cfg.Duration = v.GetFloat64("duration")
	}
	if overridden(cmd, "nodes") {
		cfg.Topology.NodeCount = v.GetInt("nodes")
	}
	if overridden(cmd, "policy") {
		cfg.Slot.InclusionPolicy = v.GetString("policy")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type runOptions struct {
	Workload scenario.WorkloadConfig
	Trace    bool
	Prom     bool
}

// runScenario runs one baseline simulation and logs its summary.
func runScenario(cfg sim.SimulationConfig, opts runOptions, logger *logrus.Logger) (*scenario.Simulation, error) {
	var scenarioOpts []scenario.Option
	if opts.Trace {
		scenarioOpts = append(scenarioOpts, scenario.WithTrace())
	}
	var reg *prometheus.Registry
	if opts.Prom {
		reg = prometheus.NewRegistry()
		sink, err := metrics.NewPrometheusSink(reg)
		if err != nil {
			return nil, err
		}
		scenarioOpts = append(scenarioOpts, scenario.WithSink(sink))
	}

	logger.WithFields(logrus.Fields{
		"seed":     cfg.Seed,
		"nodes":    cfg.Topology.NodeCount,
		"duration": cfg.Duration,
		"policy":   cfg.Slot.InclusionPolicy,
		"txs":      opts.Workload.Count,
	}).Info("Starting simulation")
	start := time.Now()

	sm, err := scenario.RunBaseline(cfg, opts.Workload, scenarioOpts...)
	if err != nil {
		return sm, err
	}

	r := sm.Results()
	logger.WithFields(logrus.Fields{
		"events":             sm.Sim.EventsProcessed(),
		"blocks":             sm.Producer.BlocksProduced(),
		"blobs_included":     sm.Producer.BlobsIncluded(),
		"txs_seen":           r.TxsSeen,
		"txs_propagated":     r.TxsPropagated,
		"txs_included":       r.TxsIncluded,
		"provider_ratio":     fmt.Sprintf("%.3f", r.ProviderRatio),
		"fetch_success_rate": fmt.Sprintf("%.3f", r.FetchSuccessRate),
		"reconstruction":     fmt.Sprintf("%.3f", r.ReconstructionSuccessRate),
		"median_propagation": fmt.Sprintf("%.3fs", r.MedianPropagation),
		"p99_propagation":    fmt.Sprintf("%.3fs", r.P99Propagation),
		"total_bytes":        r.TotalBytes,
		"control_bytes":      r.ControlBytes,
		"data_bytes":         r.DataBytes,
		"control_overhead":   fmt.Sprintf("%.3f", r.ControlOverhead),
		"bytes_per_tx":       fmt.Sprintf("%.0f", r.BytesPerTx),
		"wall_time":          time.Since(start).Round(time.Millisecond),
	}).Info("Simulation complete")

	if opts.Trace {
		ts := trace.Summarize(sm.Sim.Trace())
		logger.WithFields(logrus.Fields{
			"dispatches": ts.TotalDispatches,
			"targets":    ts.UniqueTargets,
			"last_clock": ts.LastClock,
		}).Info("Dispatch trace")
		for _, kind := range sortedKeys(ts.KindDistribution) {
			logger.Debugf("trace %-36s %d", kind, ts.KindDistribution[kind])
		}
	}
	if reg != nil {
		snap, err := metrics.Snapshot(reg)
		if err != nil {
			return sm, fmt.Errorf("gathering metrics: %w", err)
		}
		for _, name := range sortedKeys(snap) {
			logger.Infof("%s %g", name, snap[name])
		}
	}
	return sm, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
