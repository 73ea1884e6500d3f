package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ScoutYAMLConfig represents the complete scout.yaml file structure.
// Every section is optional; omitted sections keep built-in defaults.
// Tunable overrides use the registry key names (e.g. MAX_CONCURRENT_RUNS)
// so the file and the PATCH API share one vocabulary.
type ScoutYAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Signals   *SignalsConfig   `yaml:"signals"`
	Generator *GeneratorConfig `yaml:"generator"`
	Publisher *PublisherConfig `yaml:"publisher"`
	Tunables  map[string]any   `yaml:"tunables"`
}

// Initialize loads and validates the full configuration.
//
// Resolution order, lowest to highest precedence:
//  1. Built-in defaults
//  2. scout.yaml in configDir (env vars expanded via {{.VAR}} templates)
//  3. Environment variable overrides
//
// The tunable state after all three layers becomes the factory snapshot
// that POST /api/config/reset restores.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	fileCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := &Config{
		configDir: configDir,
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Signals:   DefaultSignalsConfig(),
		Generator: DefaultGeneratorConfig(),
		Publisher: DefaultPublisherConfig(),
	}

	// Merge user YAML over defaults; non-zero values override.
	if fileCfg.Server != nil {
		if err := mergo.Merge(cfg.Server, fileCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if fileCfg.Database != nil {
		if err := mergo.Merge(cfg.Database, fileCfg.Database, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge database config: %w", err)
		}
	}
	if fileCfg.Signals != nil {
		if err := mergo.Merge(cfg.Signals, fileCfg.Signals, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge signals config: %w", err)
		}
	}
	if fileCfg.Generator != nil {
		if err := mergo.Merge(cfg.Generator, fileCfg.Generator, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge generator config: %w", err)
		}
	}
	if fileCfg.Publisher != nil {
		if err := mergo.Merge(cfg.Publisher, fileCfg.Publisher, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge publisher config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.Signals.APIKey = os.Getenv(cfg.Signals.APIKeyEnv)
	if cfg.Signals.APIKey == "" {
		log.Warn("Signals API key not set; provider calls will be rejected",
			"env", cfg.Signals.APIKeyEnv)
	}
	cfg.Publisher.Token = os.Getenv(cfg.Publisher.TokenEnv)

	registry, err := buildRegistry(fileCfg.Tunables)
	if err != nil {
		return nil, err
	}
	cfg.Tunables = registry

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	snap := registry.Snapshot()
	log.Info("Configuration initialized successfully",
		"tunables", len(tunableKeys),
		"db_path", cfg.Database.Path,
		"signals_base_url", cfg.Signals.BaseURL,
		"max_concurrent_runs", snap.MaxConcurrentRuns,
		"llm_model", snap.LLMModel)
	return cfg, nil
}

func loadYAML(configDir string) (*ScoutYAMLConfig, error) {
	out := &ScoutYAMLConfig{}
	path := filepath.Join(configDir, "scout.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("No scout.yaml found, using built-in defaults", "path", path)
			return out, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, nil
}

// buildRegistry layers YAML then env tunable overrides onto defaults,
// then seals the result as the factory snapshot. Env var names match
// registry keys, so both layers go through Set and its coercions.
func buildRegistry(overrides map[string]any) (*Registry, error) {
	reg := NewRegistry(DefaultTunables())

	for key, value := range overrides {
		if err := reg.Set(key, value); err != nil {
			return nil, fmt.Errorf("tunables override: %s", err)
		}
	}

	envKeys := []string{
		"LLM_MODEL", "LLM_TOOL_TIMEOUT",
		"MAX_CONCURRENT_RUNS", "NOTION_PARENT_PAGE_ID",
	}
	for _, key := range envKeys {
		if v := os.Getenv(key); v != "" {
			if err := reg.Set(key, v); err != nil {
				return nil, fmt.Errorf("environment override: %s", err)
			}
		}
	}

	reg.sealFactory()
	return reg, nil
}

// sealFactory re-captures the current state as the factory snapshot.
// Called once at the end of Initialize so Reset restores boot state.
func (r *Registry) sealFactory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = r.current.clone()
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SCOUT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SCOUT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCOUT_PORT must be an integer: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("SCOUT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SIGNALS_BASE_URL"); v != "" {
		cfg.Signals.BaseURL = v
	}
	if v := os.Getenv("WORKSPACE_BASE_URL"); v != "" {
		cfg.Publisher.BaseURL = v
	}
	if v := os.Getenv("GENERATOR_BIN"); v != "" {
		cfg.Generator.Binary = v
	}
	return nil
}

func validate(cfg *Config) error {
	var problems []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Database.Path == "" {
		problems = append(problems, "database path is empty")
	}
	if cfg.Signals.BaseURL == "" {
		problems = append(problems, "signals base_url is empty")
	}
	for _, app := range []string{AppOpportunitySearch, AppBuyerSearch, AppBuyerProfile, AppBuyerContacts, AppBuyerChat} {
		if cfg.Signals.Apps[app] == "" {
			problems = append(problems, fmt.Sprintf("signals app %q is not mapped", app))
		}
	}
	if cfg.Generator.Binary == "" {
		problems = append(problems, "generator binary is empty")
	}

	snap := cfg.Tunables.Snapshot()
	if snap.MaxConcurrentRuns < 1 {
		problems = append(problems, "MAX_CONCURRENT_RUNS must be at least 1")
	}
	if snap.MaxSecondaryBuyers < 0 {
		problems = append(problems, "MAX_SECONDARY_BUYERS must not be negative")
	}
	if snap.OpportunityPageSize < 1 || snap.BuyerSearchPageSize < 1 {
		problems = append(problems, "search page sizes must be at least 1")
	}
	if snap.AsyncPollInterval < 1 {
		problems = append(problems, "ASYNC_POLL_INTERVAL must be at least 1 second")
	}
	for step, secs := range snap.Timeouts {
		if secs <= 0 {
			problems = append(problems, fmt.Sprintf("timeout for %s must be positive", step))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
