package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// FACTOR_BACKTEST_STRATEGY_TOP_N.
const EnvPrefix = "FACTOR_BACKTEST"

const defaultConfigPath = "config/config.yaml"

// loadDotEnv loads ./.env when present. Variables already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "factor-backtest")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("data.format", "auto")

	v.SetDefault("strategy.name", "double_low")
	v.SetDefault("strategy.top_n", 10)
	v.SetDefault("strategy.initial_capital", 1000000)
	v.SetDefault("strategy.indicators", []string{"close", "conv_prem"})
	v.SetDefault("strategy.weights", []float64{-1, -1})
	v.SetDefault("strategy.filters", map[string]interface{}{
		"left_years": []interface{}{">", 0.5},
	})

	v.SetDefault("output.dir", "results")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.run_ttl_minutes", 60)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("sweep.schedule", "0 2 * * *")
	v.SetDefault("sweep.concurrency", 4)
	v.SetDefault("sweep.output_dir", "results/sweep")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads and parses the configuration from file and environment variables.
// Placeholders in the YAML file (${VAR_NAME}) are expanded before parsing.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	loadDotEnv()
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults is like Load but a missing file is not an error: the
// defaults and environment overrides are used instead.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	loadDotEnv()
	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}
