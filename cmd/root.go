package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/saltcalc/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel   string
	logFormat  string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "saltcalc",
	Short: "Plan mineral salt additions for brewing water",
	Long: `saltcalc searches for the salt quantities that bring water to target ion
concentrations, ranges and ratios, and prints the dosing instructions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// stdout carries the report; logs go to stderr.
		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "text" {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML run configuration (defaults apply when empty)")
}

// searchFlags are command-line overrides of the run configuration.
type searchFlags struct {
	table, targets, strategy, dataDir string
	volume, eps, initMax              float64
	iters, restarts, pop, reportEvery int
	seed                              int64
}

func (f *searchFlags) register(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringVar(&f.table, "table", d.Table, "Salt/ion contribution table")
	fs.StringVar(&f.targets, "targets", d.Targets, "Target file")
	fs.Float64Var(&f.volume, "volume", d.Volume, "Litres of water to treat")
	fs.StringVar(&f.dataDir, "data-dir", d.DataDir, "Base directory for checkpoints and traces")
	fs.StringVar(&f.strategy, "strategy", d.Search.Strategy, "Search strategy: nudge, mayfly")
	fs.IntVar(&f.iters, "iters", d.Search.Iterations, "Iterations per restart")
	fs.Float64Var(&f.eps, "eps", d.Search.Eps, "Nudge scale in g/l")
	fs.Float64Var(&f.initMax, "init-max", d.Search.InitMax, "Upper end of the initial quantity draw in g/l")
	fs.IntVar(&f.restarts, "restarts", d.Search.Restarts, "Independent searches run in parallel")
	fs.IntVar(&f.pop, "pop", d.Search.Population, "Population size (mayfly)")
	fs.IntVar(&f.reportEvery, "report-every", d.Search.ReportEvery, "Progress log interval in iterations (0 disables)")
	fs.Int64Var(&f.seed, "seed", d.Search.Seed, "Random seed")
}

// apply copies explicitly set flags over cfg.
func (f *searchFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("table", func() { cfg.Table = f.table })
	set("targets", func() { cfg.Targets = f.targets })
	set("volume", func() { cfg.Volume = f.volume })
	set("data-dir", func() { cfg.DataDir = f.dataDir })
	set("strategy", func() { cfg.Search.Strategy = f.strategy })
	set("iters", func() { cfg.Search.Iterations = f.iters })
	set("eps", func() { cfg.Search.Eps = f.eps })
	set("init-max", func() { cfg.Search.InitMax = f.initMax })
	set("restarts", func() { cfg.Search.Restarts = f.restarts })
	set("pop", func() { cfg.Search.Population = f.pop })
	set("report-every", func() { cfg.Search.ReportEvery = f.reportEvery })
	set("seed", func() { cfg.Search.Seed = f.seed })
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(cmd *cobra.Command, f *searchFlags) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
		slog.Debug("Loaded config", "path", configPath)
	}
	f.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("failed to validate config: %w", err)
	}
	return cfg, nil
}
