// Package config provides configuration management for the factor backtest service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Data     DataConfig     `mapstructure:"data" validate:"required"`
	Strategy StrategyConfig `mapstructure:"strategy" validate:"required"`
	Output   OutputConfig   `mapstructure:"output"`
	Server   ServerConfig   `mapstructure:"server"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DataConfig points at the historical dataset file
type DataConfig struct {
	Path   string `mapstructure:"path" validate:"required"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=auto parquet csv"`
}

// StrategyConfig is the default factor strategy. Filters map a field to
// [operator, threshold].
type StrategyConfig struct {
	Name           string                   `mapstructure:"name" validate:"required"`
	StartDate      string                   `mapstructure:"start_date" validate:"omitempty,dateonly"`
	EndDate        string                   `mapstructure:"end_date" validate:"omitempty,dateonly"`
	TopN           int                      `mapstructure:"top_n" validate:"required,gt=0"`
	InitialCapital float64                  `mapstructure:"initial_capital" validate:"required,gt=0"`
	Indicators     []string                 `mapstructure:"indicators" validate:"required,min=1,dive,required"`
	Weights        []float64                `mapstructure:"weights" validate:"required,min=1"`
	Filters        map[string][]interface{} `mapstructure:"filters" validate:"omitempty,dive,filterop"`
}

// OutputConfig represents report output configuration
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Address               string   `mapstructure:"address" validate:"required"`
	RunTTLMinutes         int      `mapstructure:"run_ttl_minutes" validate:"gt=0"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds" validate:"gt=0"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
}

// SweepConfig represents the single-factor sweep configuration
type SweepConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Schedule       string  `mapstructure:"schedule"`
	Concurrency    int     `mapstructure:"concurrency" validate:"gte=0"`
	TopN           int     `mapstructure:"top_n" validate:"gte=0"`
	InitialCapital float64 `mapstructure:"initial_capital" validate:"gte=0"`
	StartDate      string  `mapstructure:"start_date" validate:"omitempty,dateonly"`
	EndDate        string  `mapstructure:"end_date" validate:"omitempty,dateonly"`
	OutputDir      string  `mapstructure:"output_dir"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required_if=Enabled true"`
	User           string `mapstructure:"user" validate:"required_if=Enabled true"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SecretsConfig enables the AWS Secrets Manager overlay
type SecretsConfig struct {
	AWSEnabled bool   `mapstructure:"aws_enabled"`
	Region     string `mapstructure:"region" validate:"required_if=AWSEnabled true"`
	SecretName string `mapstructure:"secret_name" validate:"required_if=AWSEnabled true"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RunTTL returns how long finished runs stay in the API run store.
func (s ServerConfig) RunTTL() time.Duration {
	return time.Duration(s.RunTTLMinutes) * time.Minute
}

// RequestTimeout returns the per-request timeout for the API.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}
