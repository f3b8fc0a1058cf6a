// Package config loads the gateway's process-wide configuration from
// .env, config.yaml, and environment variables (environment wins).
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RotationStrategy names one of the three supported rotation strategies.
type RotationStrategy string

const (
	StrategyRoundRobin     RotationStrategy = "round_robin"
	StrategyQuotaExhausted RotationStrategy = "quota_exhausted"
	StrategyRequestCount   RotationStrategy = "request_count"
)

// OAuthClient is the baked-in Google OAuth2 client used for refresh grants.
type OAuthClient struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

// Config is the fully resolved, read-only configuration the core consumes.
type Config struct {
	Port int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	DataDir string `yaml:"data_dir"`

	RotationStrategy     RotationStrategy `yaml:"rotation_strategy"`
	RequestCountPerToken int              `yaml:"request_count_per_token"`

	RetryTimes        int           `yaml:"retry_times"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	PassSignatureToClient bool `yaml:"pass_signature_to_client"`

	MemoryHighMB int `yaml:"memory_high_mb"`

	SystemInstruction string `yaml:"system_instruction"`

	SkipProjectDiscovery bool `yaml:"skip_project_discovery"`

	// ExtraRequestJSON is a raw JSON object merged onto every upstream
	// request body (e.g. {"safetySettings":[...]}) without requiring a
	// code change for fields this gateway doesn't otherwise model.
	ExtraRequestJSON string `yaml:"extra_request_json"`

	OAuth OAuthClient `yaml:"oauth"`

	LogLevel    string `yaml:"log_level"`
	LogFilePath string `yaml:"log_file_path"`

	path string
}

// Default returns the configuration used when no file/env overrides are present.
func Default() *Config {
	return &Config{
		Port:                 8080,
		DataDir:              "data",
		RotationStrategy:     StrategyRoundRobin,
		RequestCountPerToken: 10,
		RetryTimes:           3,
		HeartbeatInterval:    15 * time.Second,
		PassSignatureToClient: true,
		MemoryHighMB:         512,
		OAuth: OAuthClient{
			// Baked-in public OAuth client used by CLI-style Google code-assist
			// integrations (e.g. gemini-cli, antigravity). Not a secret in the
			// traditional sense: every installed client shares it.
			ID:     "681255809395-oo8ft2oprdrnp9e3aqf6avd8ed2dpdse.apps.googleusercontent.com",
			Secret: "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",
		},
		LogLevel: "info",
	}
}

// Load resolves configuration from (in increasing priority): defaults,
// .env (via godotenv), configPath (YAML), then process environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	cfg.path = configPath

	wd, err := os.Getwd()
	if err == nil {
		if errEnv := godotenv.Load(filepath.Join(wd, ".env")); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
			// Non-fatal: the .env file is an optional convenience layer.
			_ = errEnv
		}
	}

	if configPath != "" {
		if data, errRead := os.ReadFile(configPath); errRead == nil {
			if errYAML := yaml.Unmarshal(data, cfg); errYAML != nil {
				return nil, errYAML
			}
		} else if !errors.Is(errRead, os.ErrNotExist) {
			return nil, errRead
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ROTATION_STRATEGY"); v != "" {
		cfg.RotationStrategy = RotationStrategy(v)
	}
	if v := os.Getenv("REQUEST_COUNT_PER_TOKEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestCountPerToken = n
		}
	}
	if v := os.Getenv("RETRY_TIMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryTimes = n
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PASS_SIGNATURE_TO_CLIENT"); v != "" {
		cfg.PassSignatureToClient = v == "true" || v == "1"
	}
	if v := os.Getenv("MEMORY_HIGH_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemoryHighMB = n
		}
	}
	if v := os.Getenv("SYSTEM_INSTRUCTION"); v != "" {
		cfg.SystemInstruction = v
	}
}

// WatchRotationStrategy watches the backing config file for changes and
// invokes onChange with the reloaded strategy/requestCountPerToken whenever
// those fields change, so the rotation strategy can hot-swap without a
// process restart.
func WatchRotationStrategy(cfg *Config, onChange func(RotationStrategy, int)) (*fsnotify.Watcher, error) {
	if cfg.path == "" {
		return nil, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(cfg.path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := Load(cfg.path)
				if err != nil {
					continue
				}
				if reloaded.RotationStrategy != cfg.RotationStrategy || reloaded.RequestCountPerToken != cfg.RequestCountPerToken {
					cfg.RotationStrategy = reloaded.RotationStrategy
					cfg.RequestCountPerToken = reloaded.RequestCountPerToken
					onChange(cfg.RotationStrategy, cfg.RequestCountPerToken)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
