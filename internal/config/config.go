// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/storyloom/orchestrator/internal/domain"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Backends     []BackendConfig    `koanf:"backends"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Breaker      BreakerConfig      `koanf:"breaker"`
	Retry        RetryConfig        `koanf:"retry"`
	Cache        CacheConfig        `koanf:"cache"`
	Session      SessionConfig      `koanf:"session"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// BackendConfig declares one backend: its client type plus the descriptor
// the router sees.
type BackendConfig struct {
	ID              string        `koanf:"id"`
	Type            string        `koanf:"type"` // http, fake
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	CostPerKTokens  float64       `koanf:"cost_per_k_tokens"`
	MinLatency      time.Duration `koanf:"min_latency"`
	MaxLatency      time.Duration `koanf:"max_latency"`
	CapabilityTags  []string      `koanf:"capability_tags"`
	CapabilityScore int           `koanf:"capability_score"`
	MaxConcurrency  int           `koanf:"max_concurrency"`
}

// Descriptor converts the config entry to the routing descriptor.
func (b BackendConfig) Descriptor() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		ID:              b.ID,
		CostPerKTokens:  b.CostPerKTokens,
		MinLatency:      domain.Duration(b.MinLatency),
		MaxLatency:      domain.Duration(b.MaxLatency),
		CapabilityTags:  b.CapabilityTags,
		CapabilityScore: b.CapabilityScore,
		MaxConcurrency:  b.MaxConcurrency,
	}
}

type OrchestratorConfig struct {
	BatchSize   int           `koanf:"batch_size"`
	MaxWorkers  int           `koanf:"max_workers"`
	CallTimeout time.Duration `koanf:"call_timeout"`
}

type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	RecoveryTimeout  time.Duration `koanf:"recovery_timeout"`
}

type RetryConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	MaxAttempts int           `koanf:"max_attempts"`
	Jitter      float64       `koanf:"jitter"`
}

type CacheConfig struct {
	Capacity      int     `koanf:"capacity"`
	Threshold     float64 `koanf:"threshold"`
	EvictFraction float64 `koanf:"evict_fraction"`
}

type SessionConfig struct {
	DefaultMaxCalls int `koanf:"default_max_calls"`
}

// Load reads configuration from path (optional) and ORCH_-prefixed
// environment variables, environment winning. Double underscore separates
// key segments (ORCH_BREAKER__FAILURE_THRESHOLD), keeping single
// underscores available inside key names.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ORCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ORCH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("server.port", 8080)
	k.Set("storage.type", "memory")
	k.Set("storage.sqlite.path", "orchestrator.db")
	k.Set("orchestrator.batch_size", 5)
	k.Set("orchestrator.max_workers", 4)
	k.Set("orchestrator.call_timeout", "60s")
	k.Set("breaker.failure_threshold", 3)
	k.Set("breaker.recovery_timeout", "45s")
	k.Set("retry.base_delay", "1s")
	k.Set("retry.max_delay", "30s")
	k.Set("retry.max_attempts", 6)
	k.Set("retry.jitter", 0.25)
	k.Set("cache.capacity", 1000)
	k.Set("cache.threshold", 0.85)
	k.Set("cache.evict_fraction", 0.20)
	k.Set("session.default_max_calls", 50)
}

// Descriptors converts all configured backends to routing descriptors.
func (c *Config) Descriptors() []domain.BackendDescriptor {
	out := make([]domain.BackendDescriptor, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, b.Descriptor())
	}
	return out
}
