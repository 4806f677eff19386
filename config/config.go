// Package config loads the engine configuration from a YAML document with
// environment-variable overrides. Precedence: defaults, then file, then
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adwhq/adwflow/dispatch"
	"github.com/adwhq/adwflow/internal/telemetry"
	"github.com/adwhq/adwflow/store"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "ADWFLOW"

// Config is the complete engine configuration.
type Config struct {
	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`
	// DefinitionsDir holds the workflow definition documents, one YAML
	// file per workflow name.
	DefinitionsDir string `yaml:"definitions_dir"`
	// KnowledgeDir holds expert context files consumed by load_expert.
	KnowledgeDir string `yaml:"knowledge_dir"`
	// WorkDir is handed to backends as the working directory.
	WorkDir string `yaml:"work_dir"`

	// Backends lists the model-API backends, highest tier first.
	Backends []dispatch.HTTPBackendConfig `yaml:"backends"`
	// CLI configures the lowest-tier subprocess fallback.
	CLI dispatch.CLIBackendConfig `yaml:"cli"`
	// FallbackChain orders the backends tried after a failed hop.
	FallbackChain []string `yaml:"fallback_chain"`

	// Redis optionally enables the Redis run store.
	Redis *store.RedisConfig `yaml:"redis,omitempty"`
	// ArchivePath optionally enables the SQLite run archive.
	ArchivePath string `yaml:"archive_path,omitempty"`

	// Telemetry configures trace export.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:            LogConfig{Level: "info", Format: "console"},
		DefinitionsDir: "workflows",
		CLI: dispatch.CLIBackendConfig{
			Name:    "cli",
			Command: "claude",
			Args:    []string{"-p"},
			Timeout: 330 * time.Second,
		},
	}
}

// Load reads the configuration file at path (skipped when empty or
// missing), applies it over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides select fields from the environment. API keys in
// particular should come from the environment rather than the file.
func applyEnv(cfg *Config) {
	if v := envStr("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := envStr("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := envStr("DEFINITIONS_DIR"); v != "" {
		cfg.DefinitionsDir = v
	}
	if v := envStr("KNOWLEDGE_DIR"); v != "" {
		cfg.KnowledgeDir = v
	}
	if v := envStr("WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := envStr("API_KEY"); v != "" {
		for i := range cfg.Backends {
			if cfg.Backends[i].APIKey == "" {
				cfg.Backends[i].APIKey = v
			}
		}
	}
	if v := envStr("CLI_COMMAND"); v != "" {
		cfg.CLI.Command = v
	}
	if v := envStr("ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := envStr("REDIS_ADDR"); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &store.RedisConfig{}
		}
		cfg.Redis.Addr = v
	}
	if v := envStr("TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = b
		}
	}
	if v := envStr("TELEMETRY_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
}

func envStr(key string) string {
	return os.Getenv(EnvPrefix + "_" + key)
}
