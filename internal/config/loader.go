package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from layered sources, lowest priority
// first: built-in defaults, an optional YAML file named by CONTEXT_ENGINE_CONFIG,
// then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = []string{"defaults"}

	if path := os.Getenv("CONTEXT_ENGINE_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	applyEnv(cfg)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides individual settings from environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}
	setDuration := func(key string, target *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*target = d
			}
		}
	}
	setBool := func(key string, target *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*target = b
			}
		}
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = Environment(v)
	}
	setInt("SERVICE_PORT", &cfg.Server.Port)
	setString("SERVICE_HOST", &cfg.Server.Host)

	setString("GRAPH_ENDPOINT", &cfg.Graph.Endpoint)
	setDuration("GRAPH_TIMEOUT", &cfg.Graph.Timeout)
	setInt("GRAPH_MAX_RETRIES", &cfg.Graph.MaxRetries)
	setDuration("GRAPH_RETRY_BASE", &cfg.Graph.RetryBaseDelay)
	if v := os.Getenv("BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Graph.FailureThreshold = uint32(n)
		}
	}
	setDuration("BREAKER_OPEN_DURATION", &cfg.Graph.OpenDuration)

	setString("CASEDB_ENDPOINT", &cfg.CaseDB.Endpoint)
	setDuration("CASEDB_TIMEOUT", &cfg.CaseDB.Timeout)

	setBool("ENABLE_MEMORY_CACHE", &cfg.Cache.EnableMemory)
	setBool("ENABLE_PERSISTENT_CACHE", &cfg.Cache.EnablePersistent)
	setInt("MEMORY_CACHE_CAPACITY", &cfg.Cache.MemoryCapacity)
	setDuration("MEMORY_CACHE_TTL", &cfg.Cache.MemoryTTL)
	setDuration("ACTIVE_CASE_TTL", &cfg.Cache.ActiveCaseTTL)
	setDuration("CLOSED_CASE_TTL", &cfg.Cache.ClosedCaseTTL)

	setDuration("BUILD_OVERALL_DEADLINE", &cfg.Build.OverallDeadline)
	setInt("BATCH_LIMIT", &cfg.Batch.Limit)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	setBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	setString("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
}
