package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// Environment > config file > defaults precedence.
func LoadConfig(configPath string) (*EngineConfig, error) {
	v := viper.New()

	// Defaults matching DefaultEngineConfig
	v.SetDefault("engine.max_open_assignments", 5)
	v.SetDefault("engine.eval_cache_ttl", "5m")

	// Bind environment variables with SE_ prefix
	v.SetEnvPrefix("SE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Encryption keys must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &EngineConfig{
		MaxOpenAssignments: v.GetInt("engine.max_open_assignments"),
		EvalCacheTTL:       v.GetDuration("engine.eval_cache_ttl"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks positive values for guardrail limit and cache TTL.
func validateConfig(cfg *EngineConfig) error {
	if cfg.MaxOpenAssignments <= 0 {
		return fmt.Errorf("max_open_assignments must be positive, got %d", cfg.MaxOpenAssignments)
	}
	if cfg.EvalCacheTTL < 0 {
		return fmt.Errorf("eval_cache_ttl must not be negative, got %v", cfg.EvalCacheTTL)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. InConfig
// inspects the config file alone, so SE_PARTIAL_KEY in the environment
// stays legal.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("partial_key") || v.InConfig("engine.partial_key") {
		return fmt.Errorf("encryption keys not allowed in config files (use SE_PARTIAL_KEY environment variable)")
	}
	return nil
}
