// Package config provides configuration for the context engine: typed
// structs with validation tags, layered loading (defaults, YAML file,
// environment), and hot-reload of tunables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete service configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server" json:"server"`
	Graph       Graph       `yaml:"graph" json:"graph"`
	CaseDB      CaseDB      `yaml:"casedb" json:"casedb"`
	Cache       Cache       `yaml:"cache" json:"cache"`
	Build       Build       `yaml:"build" json:"build"`
	Batch       Batch       `yaml:"batch" json:"batch"`
	Logging     Logging     `yaml:"logging" json:"logging"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`

	// LoadedFrom tracks where the configuration came from.
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Server contains HTTP server settings.
type Server struct {
	Port            int           `yaml:"port" json:"port" validate:"required,min=1,max=65535"`
	Host            string        `yaml:"host" json:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"min=1s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"min=1s"`
}

// Address renders the listen address.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Graph contains the knowledge-graph upstream settings.
type Graph struct {
	Endpoint         string        `yaml:"endpoint" json:"endpoint" validate:"required,url"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" validate:"min=1s,max=5m"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" validate:"min=10ms,max=30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold" validate:"min=1,max=100"`
	OpenDuration     time.Duration `yaml:"open_duration" json:"open_duration" validate:"min=1s,max=10m"`
}

// CaseDB contains the relational case-store upstream settings.
type CaseDB struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint" validate:"required,url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"min=1s,max=1m"`
}

// Cache contains cache tier and TTL settings.
type Cache struct {
	EnableMemory     bool          `yaml:"enable_memory" json:"enable_memory"`
	EnablePersistent bool          `yaml:"enable_persistent" json:"enable_persistent"`
	MemoryCapacity   int           `yaml:"memory_capacity" json:"memory_capacity" validate:"min=1,max=1000000"`
	MemoryTTL        time.Duration `yaml:"memory_ttl" json:"memory_ttl" validate:"min=1s"`
	ActiveCaseTTL    time.Duration `yaml:"active_case_ttl" json:"active_case_ttl" validate:"min=1s"`
	ClosedCaseTTL    time.Duration `yaml:"closed_case_ttl" json:"closed_case_ttl" validate:"min=1s"`
	SweepInterval    time.Duration `yaml:"sweep_interval" json:"sweep_interval" validate:"min=1s"`
}

// Build contains context-build orchestration settings.
type Build struct {
	OverallDeadline time.Duration `yaml:"overall_deadline" json:"overall_deadline" validate:"min=1s,max=5m"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" json:"metadata_timeout" validate:"min=100ms,max=30s"`
	ScoringBudget   time.Duration `yaml:"scoring_budget" json:"scoring_budget" validate:"min=10ms,max=5s"`
}

// Batch contains batch-retrieve settings.
type Batch struct {
	Limit       int `yaml:"limit" json:"limit" validate:"min=1,max=500"`
	Parallelism int `yaml:"parallelism" json:"parallelism" validate:"min=1,max=64"`
}

// Logging contains log settings.
type Logging struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
}

// Metrics contains Prometheus settings.
type Metrics struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Tracing contains OpenTelemetry settings.
type Tracing struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Port:            8015,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Graph: Graph{
			Endpoint:         "http://localhost:8010",
			Timeout:          20 * time.Second,
			MaxRetries:       3,
			RetryBaseDelay:   time.Second,
			FailureThreshold: 5,
			OpenDuration:     60 * time.Second,
		},
		CaseDB: CaseDB{
			Endpoint: "http://localhost:8011",
			Timeout:  10 * time.Second,
		},
		Cache: Cache{
			EnableMemory:     true,
			EnablePersistent: false,
			MemoryCapacity:   1000,
			MemoryTTL:        600 * time.Second,
			ActiveCaseTTL:    3600 * time.Second,
			ClosedCaseTTL:    86400 * time.Second,
			SweepInterval:    time.Minute,
		},
		Build: Build{
			OverallDeadline: 30 * time.Second,
			MetadataTimeout: 3 * time.Second,
			ScoringBudget:   250 * time.Millisecond,
		},
		Batch: Batch{
			Limit:       50,
			Parallelism: 4,
		},
		Logging: Logging{Level: "info"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
		Tracing: Tracing{Enabled: false},
	}
}
