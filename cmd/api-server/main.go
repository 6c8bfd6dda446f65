// Package main serves the backtest HTTP API over a dataset loaded once at
// startup.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/factor-backtest/internal/api"
	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/database"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/health"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/ranking"
	"github.com/yourusername/factor-backtest/internal/repository"
	"github.com/yourusername/factor-backtest/internal/scheduler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const shutdownTimeout = 30 * time.Second

var (
	configFile string
	dataPath   string
	address    string
	appLogger  *logrus.Logger
	cfg        *config.Config
	cache      *datacache.Cache
	db         *database.DB
	repos      *repository.Repositories
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&dataPath, "data", "", "Override dataset path")
	rootCmd.Flags().StringVar(&address, "address", "", "Override listen address")
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "api-server",
	Short: "Serve the factor backtest API",
	Long:  `Loads the dataset once, serves backtests over HTTP and websocket, and optionally runs the factor sweep on a cron schedule.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeDependencies()
		return serve(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("api-server %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
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
	if address != "" {
		cfg.Server.Address = address
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return config.ValidateEnvironment(cfg)
}

func setupDependencies(ctx context.Context) error {
	appLogger = logger.NewLogger(cfg.App.LogLevel)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	var err error
	cache, err = datacache.Load(cfg.Data.Path, cfg.Data.Format, appLogger)
	if err != nil {
		return fmt.Errorf("failed to build data cache: %w", err)
	}

	if !cfg.Database.Enabled {
		appLogger.Info("Database disabled, results will not be persisted")
		return nil
	}
	db, err = database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	return nil
}

func closeDependencies() {
	if db != nil {
		db.Close()
	}
}

func serve(ctx context.Context) error {
	healthCfg := health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Logger:      appLogger,
	}
	apiCfg := api.Config{
		Cache:   cache,
		Logger:  appLogger,
		Server:  cfg.Server,
		Metrics: cfg.Metrics,
	}
	if db != nil {
		healthCfg.DB = db
		apiCfg.Repo = repos.BacktestResult
	}
	apiCfg.Health = health.NewServer(healthCfg)

	server, err := api.New(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	sched, err := buildScheduler(server)
	if err != nil {
		return err
	}
	if sched != nil {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
		appLogger.WithField("next_run", sched.NextRun()).Info("Factor sweep scheduled")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	appLogger.WithFields(logrus.Fields{
		"address":    cfg.Server.Address,
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}).Info("API server started")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	appLogger.Info("API server stopped")
	return nil
}

// buildScheduler returns nil when the sweep is disabled.
func buildScheduler(server *api.Server) (*scheduler.Scheduler, error) {
	if !cfg.Sweep.Enabled {
		return nil, nil
	}
	base, err := backtest.SweepBase(&cfg.Sweep)
	if err != nil {
		return nil, err
	}
	factors := ranking.Available(ranking.DefaultCatalog, cache.Frame().HasColumn)
	if len(factors) == 0 {
		appLogger.Warn("Sweep enabled but the dataset has no catalog factor columns")
		return nil, nil
	}

	job := &scheduler.SweepJob{
		Cache:       cache,
		Configs:     backtest.SweepConfigs(factors, base),
		Concurrency: cfg.Sweep.Concurrency,
		OutputDir:   cfg.Sweep.OutputDir,
		Publisher:   server,
		Logger:      appLogger,
	}
	if repos != nil {
		job.Repo = repos.BacktestResult
	}

	sched := scheduler.NewScheduler(appLogger, time.Hour)
	if err := sched.Schedule(cfg.Sweep.Schedule, job); err != nil {
		return nil, err
	}
	return sched, nil
}
