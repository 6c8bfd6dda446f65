// Package main runs every catalog factor as a single-factor strategy and
// writes a ranked summary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile  string
	dataPath    string
	outputDir   string
	concurrency int
	appLogger   *logrus.Logger
	cfg         *config.Config
	cache       *datacache.Cache
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&dataPath, "data", "", "Override dataset path")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Override sweep output directory")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override number of parallel runs")
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "factor-sweep",
	Short: "Backtest every catalog factor on its own",
	Long:  `Runs one single-factor backtest per available catalog factor over a shared data cache and ranks them by annualized return.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("factor-sweep %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig(ctx context.Context) error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		return err
	}
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if outputDir != "" {
		cfg.Sweep.OutputDir = outputDir
	}
	if concurrency > 0 {
		cfg.Sweep.Concurrency = concurrency
	}
	return config.Validate(cfg)
}

func setupDependencies() error {
	appLogger = logger.NewLogger(cfg.App.LogLevel)

	var err error
	cache, err = datacache.Load(cfg.Data.Path, cfg.Data.Format, appLogger)
	if err != nil {
		return fmt.Errorf("failed to build data cache: %w", err)
	}
	return nil
}

func runSweep(ctx context.Context) error {
	base, err := backtest.SweepBase(&cfg.Sweep)
	if err != nil {
		return err
	}
	factors := ranking.Available(ranking.DefaultCatalog, cache.Frame().HasColumn)
	if len(factors) == 0 {
		return fmt.Errorf("dataset has none of the catalog factor columns")
	}
	configs := backtest.SweepConfigs(factors, base)

	appLogger.WithFields(logrus.Fields{
		"factors":     len(configs),
		"concurrency": cfg.Sweep.Concurrency,
		"version":     Version,
	}).Info("Starting factor sweep")

	result, err := backtest.RunSweep(ctx, cache, configs, cfg.Sweep.Concurrency, appLogger)
	if err != nil {
		metrics.RecordSweepRun("cli", "failure")
		return fmt.Errorf("sweep failed: %w", err)
	}
	metrics.RecordSweepRun("cli", "success")

	printSummary(result)

	if cfg.Sweep.OutputDir == "" {
		return nil
	}
	path := filepath.Join(cfg.Sweep.OutputDir, fmt.Sprintf("sweep_%s.csv", result.StartedAt.Format("20060102T150405")))
	if err := backtest.WriteSweepCSV(path, result); err != nil {
		return fmt.Errorf("failed to write sweep summary: %w", err)
	}
	appLogger.WithField("path", path).Info("Sweep summary written")
	return nil
}

func printSummary(result *backtest.SweepResult) {
	stats := result.Stats()
	fmt.Printf("Factor sweep: %d succeeded, %d failed in %.2fs\n",
		len(result.Entries), len(result.Failures), result.Duration)
	fmt.Printf("Annualized return mean %.2f%%, median %.2f%%, best %s\n",
		stats.Mean*100, stats.Median*100, stats.Best)
	for i, e := range result.Entries {
		if i == 10 {
			break
		}
		fmt.Printf("%2d. %-24s %8.2f%%  sharpe %6.2f  %s\n",
			i+1, e.Config.StrategyName, e.Analytics.AnnualizedReturn*100, e.Analytics.SharpeRatio, e.Recommendation)
	}
}
