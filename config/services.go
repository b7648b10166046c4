package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeAnalysisRunner runs the analysis worker pool.
	ServiceModeAnalysisRunner ServiceMode = "analysis-runner"
	// ServiceModeSweeper runs the stale-task sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeAnalysisRunner,
		ServiceModeSweeper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeAnalysisRunner, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: analysis-runner, sweeper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// InferenceConfig contains the remote inference provider configuration.
type InferenceConfig struct {
	// BaseURL is the root of the inference HTTP API.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8600"`

	// APIKey authenticates requests; empty disables the Authorization header.
	APIKey string `env:"API_KEY" envDefault:""`

	// Model selects the remote model for classification and regression calls.
	Model string `env:"MODEL" envDefault:"convolens-base"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// MaxRetries bounds transient-failure retries per operation.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"5"`

	// UnhandledErrorsPath is the file unclassified failures are appended to.
	UnhandledErrorsPath string `env:"UNHANDLED_ERRORS_PATH" envDefault:"unhandled_errors.log"`
}

// Sanitize applies guardrails to inference configuration values.
func (c *InferenceConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
}

// AnalysisRunnerConfig contains analysis worker pool configuration.
type AnalysisRunnerConfig struct {
	// Workers is the number of concurrent analysis workers.
	Workers int `env:"ANALYSIS_WORKERS" envDefault:"4"`

	// QueueSize is the dispatch buffer size.
	QueueSize int `env:"ANALYSIS_QUEUE_SIZE" envDefault:"64"`
}

// Sanitize applies guardrails to analysis runner configuration values.
func (c *AnalysisRunnerConfig) Sanitize() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
}

// SweeperConfig contains stale-task sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweep cadence.
	Interval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	// StaleAfter is how long a task may stay pending before re-queue.
	StaleAfter time.Duration `env:"SWEEP_STALE_AFTER" envDefault:"10m"`

	// BatchSize is the maximum number of tasks re-queued per sweep.
	BatchSize int `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (c *SweeperConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
}

// IngestionConfig contains document ingestion configuration.
type IngestionConfig struct {
	// DraftTTL is how long staged artifacts are retained before expiring.
	DraftTTL time.Duration `env:"INGESTION_DRAFT_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to ingestion configuration values.
func (c *IngestionConfig) Sanitize() {
	if c.DraftTTL <= 0 {
		c.DraftTTL = 24 * time.Hour
	}
}
