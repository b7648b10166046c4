// Package config holds the environment-driven application configuration.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and artifact store configuration
//   - services.go: Service mode and worker configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, etc.)
	// Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Service mode configuration. Comma-delimited list of services to run
	// in this process, e.g. "analysis-runner,sweeper".
	Services string `env:"SERVICES" envDefault:"analysis-runner"`

	// Inference provider configuration
	Inference InferenceConfig `envPrefix:"INFERENCE_"`

	// Analysis worker pool configuration
	AnalysisRunner AnalysisRunnerConfig

	// Stale-task sweeper configuration
	Sweeper SweeperConfig

	// Document ingestion configuration
	Ingestion IngestionConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.AnalysisRunner.Sanitize()
	c.Sweeper.Sanitize()
	c.Ingestion.Sanitize()
	c.Inference.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables. APP_ENV is
// checked as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}
