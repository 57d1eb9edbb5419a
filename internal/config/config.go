// Package config loads and validates the iqrah learning core's
// configuration: database paths, scheduler weights, bandit arm profiles,
// propagation thresholds, and logging settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all iqrah-core configuration.
type Config struct {
	DataDir     string           `yaml:"data_dir"`
	Content     ContentConfig    `yaml:"content"`
	Memory      MemoryConfig     `yaml:"memory"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Bandit      BanditConfig     `yaml:"bandit"`
	Propagation PropagationConfig `yaml:"propagation"`
	Session     SessionConfig    `yaml:"session"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ContentConfig locates the installed content artifact.
type ContentConfig struct {
	DatabasePath string `yaml:"database_path"`
	CacheSize    int    `yaml:"cache_size"`
}

// MemoryConfig locates the per-user memory database.
type MemoryConfig struct {
	DatabasePath   string `yaml:"database_path"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms"`
}

// SchedulerConfig holds Stage2 scoring weight defaults and thresholds.
type SchedulerConfig struct {
	PrereqEnergyThreshold float64 `yaml:"prereq_energy_threshold"`
	DefaultSessionSize    int     `yaml:"default_session_size"`
	WarmBudgetMs          int     `yaml:"warm_budget_ms"`
	ColdBudgetMs          int     `yaml:"cold_budget_ms"`
}

// BanditConfig holds the named weight-profile arms available to the
// Thompson-sampling bandit, keyed by profile name.
type BanditConfig struct {
	Profiles map[string]ArmWeights `yaml:"profiles"`
}

// ArmWeights are the Stage2 scoring weights (urgency, readiness,
// foundation, influence) a bandit arm contributes.
type ArmWeights struct {
	Urgency    float64 `yaml:"urgency"`
	Readiness  float64 `yaml:"readiness"`
	Foundation float64 `yaml:"foundation"`
	Influence  float64 `yaml:"influence"`
}

// PropagationConfig holds energy-cascade defaults.
type PropagationConfig struct {
	DefaultDepth    int     `yaml:"default_depth"`
	MinDelta        float64 `yaml:"min_delta"`
	ReverseDamping  float64 `yaml:"reverse_damping"`
}

// SessionConfig holds session-engine defaults.
type SessionConfig struct {
	DefaultSize int `yaml:"default_size"`
}

// LoggingConfig mirrors logging.Settings in yaml-tagged form.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the built-in defaults, matching the constants in
// spec.md §4.3-§4.6.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Content: ContentConfig{
			DatabasePath: "data/content.db",
			CacheSize:    2048,
		},
		Memory: MemoryConfig{
			DatabasePath:   "data/memory.db",
			QueryTimeoutMs: 5000,
		},
		Scheduler: SchedulerConfig{
			PrereqEnergyThreshold: 0.30,
			DefaultSessionSize:    20,
			WarmBudgetMs:          200,
			ColdBudgetMs:          1000,
		},
		Bandit: BanditConfig{
			Profiles: map[string]ArmWeights{
				"balanced":         {Urgency: 1.0, Readiness: 1.0, Foundation: 1.0, Influence: 1.0},
				"foundation_heavy": {Urgency: 0.8, Readiness: 1.0, Foundation: 1.5, Influence: 0.8},
				"influence_heavy":  {Urgency: 0.8, Readiness: 1.0, Foundation: 0.8, Influence: 1.5},
				"urgency_heavy":    {Urgency: 1.5, Readiness: 0.8, Foundation: 1.0, Influence: 0.8},
			},
		},
		Propagation: PropagationConfig{
			DefaultDepth:   3,
			MinDelta:       0.02,
			ReverseDamping: 0.5,
		},
		Session: SessionConfig{
			DefaultSize: 20,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads a YAML config file, falling back to DefaultConfig fields for
// anything the file omits, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployment-time env vars win over file values,
// following the precedence-chain idiom: only override when the env var is
// actually set, never clobber an explicit file value with an empty string.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IQRAH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("IQRAH_CONTENT_DB"); v != "" {
		c.Content.DatabasePath = v
	}
	if v := os.Getenv("IQRAH_MEMORY_DB"); v != "" {
		c.Memory.DatabasePath = v
	}
	if v := os.Getenv("IQRAH_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("IQRAH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
