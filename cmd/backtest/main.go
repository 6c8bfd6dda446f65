// Package main provides the entry point for the backtesting CLI tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/database"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/models"
	"github.com/yourusername/factor-backtest/internal/repository"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to config file")
		dataPath    = flag.String("data", "", "Override dataset path")
		startDate   = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate     = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		topN        = flag.Int("top-n", 0, "Override number of holdings")
		mode        = flag.String("mode", "single", "Backtest mode: single, walk-forward")
		windowDays  = flag.Int("window-days", 120, "Walk-forward window length in trading days")
		stepDays    = flag.Int("step-days", 60, "Walk-forward step in trading days")
		concurrency = flag.Int("concurrency", 4, "Walk-forward windows run in parallel")
		output      = flag.String("output", "", "Override report directory")
		persist     = flag.Bool("persist", false, "Save the result to the database")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("backtest %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfigWithSecrets(ctx, *configPath)
	log := logger.NewLogger(cfg.App.LogLevel)
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	if *output != "" {
		cfg.Output.Dir = *output
	}

	runCfg := buildRunConfig(cfg, *startDate, *endDate, *topN, log)
	cache := loadCache(cfg, log)

	log.WithFields(logrus.Fields{"mode": *mode, "strategy": runCfg.StrategyName, "version": Version}).Info("Starting backtest")
	switch *mode {
	case "single":
		runSingle(ctx, cfg, cache, runCfg, *persist, log)
	case "walk-forward":
		runWalkForward(ctx, cache, runCfg, backtest.WalkForwardConfig{
			WindowDays:  *windowDays,
			StepDays:    *stepDays,
			Concurrency: *concurrency,
		}, cfg.Output.Dir, log)
	default:
		log.Fatalf("Unsupported mode: %s", *mode)
	}
}

func loadConfigWithSecrets(ctx context.Context, path string) *config.Config {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		logrus.Fatalf("Failed to load secrets: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func buildRunConfig(cfg *config.Config, startOverride, endOverride string, topN int, log *logrus.Logger) backtest.RunConfig {
	runCfg, err := backtest.FromConfig(&cfg.Strategy)
	if err != nil {
		log.Fatalf("Invalid strategy config: %v", err)
	}
	if startOverride != "" {
		if runCfg.StartDate, err = models.ParseDate(startOverride); err != nil {
			log.Fatalf("Invalid start date: %v", err)
		}
	}
	if endOverride != "" {
		if runCfg.EndDate, err = models.ParseDate(endOverride); err != nil {
			log.Fatalf("Invalid end date: %v", err)
		}
	}
	if topN > 0 {
		runCfg.TopN = topN
	}
	if err := runCfg.Validate(); err != nil {
		log.Fatalf("Invalid run config: %v", err)
	}
	return runCfg
}

func loadCache(cfg *config.Config, log *logrus.Logger) *datacache.Cache {
	cache, err := datacache.Load(cfg.Data.Path, cfg.Data.Format, log)
	if err != nil {
		log.Fatalf("Failed to build data cache: %v", err)
	}
	return cache
}

func runSingle(ctx context.Context, cfg *config.Config, cache *datacache.Cache, runCfg backtest.RunConfig, persist bool, log *logrus.Logger) {
	engine, err := backtest.NewEngine(cache, runCfg, log)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	state, analytics, err := engine.Run(ctx)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	fmt.Println(backtest.GenerateConsoleReport(analytics))

	if cfg.Output.Dir != "" {
		if err := backtest.WriteReports(cfg.Output.Dir, state, analytics, runCfg); err != nil {
			log.Fatalf("Failed to write reports: %v", err)
		}
		log.WithField("dir", cfg.Output.Dir).Info("Reports written")
	}

	if persist {
		if err := persistResult(ctx, cfg, engine.RunID(), analytics, runCfg); err != nil {
			log.Fatalf("Failed to persist backtest result: %v", err)
		}
		log.WithField("run_id", engine.RunID()).Info("Backtest result saved")
	}
}

func persistResult(ctx context.Context, cfg *config.Config, runID string, analytics backtest.Analytics, runCfg backtest.RunConfig) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is disabled in config")
	}
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return err
	}
	result, err := backtest.NewBacktestResult(id, backtest.MethodSingle, analytics, runCfg, nil)
	if err != nil {
		return err
	}
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return repos.BacktestResult.SaveResult(saveCtx, result)
}

func runWalkForward(ctx context.Context, cache *datacache.Cache, runCfg backtest.RunConfig, wf backtest.WalkForwardConfig, outDir string, log *logrus.Logger) {
	result, err := backtest.RunWalkForward(ctx, cache, runCfg, wf, log)
	if err != nil {
		log.Fatalf("Walk-forward failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"windows":        len(result.Windows),
		"mean_return":    result.MeanReturn,
		"consistency":    result.ConsistencyScore,
		"recommendation": result.Recommendation,
	}).Info("Walk-forward completed")

	if outDir == "" {
		return
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	path := filepath.Join(outDir, "walk_forward.json")
	if err := os.WriteFile(path, []byte(result.ToJSON()), 0o644); err != nil {
		log.Fatalf("Failed to write walk-forward result: %v", err)
	}
	log.WithField("path", path).Info("Walk-forward result written")
}
