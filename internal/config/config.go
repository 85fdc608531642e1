// Package config provides configuration management for surfacepool using
// Viper for flexible configuration loading from files, environment variables,
// and command-line flags.
//
// The configuration covers the render-surface pool size, the visibility
// dependency rules and initial flags, and logging. Environment overrides use
// the SURFACEPOOL_ prefix, e.g. SURFACEPOOL_POOL_CAPACITY=8.
package config

import (
	"strings"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/conneroisu/surfacepool/internal/visibility"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SURFACEPOOL"

type Config struct {
	Pool       PoolConfig       `yaml:"pool" json:"pool"`
	Visibility VisibilityConfig `yaml:"visibility" json:"visibility"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

type PoolConfig struct {
	Capacity int  `yaml:"capacity" json:"capacity"`
	Prefill  bool `yaml:"prefill" json:"prefill"`
}

// VisibilityConfig holds the dependency rules and initial base flags. Both
// are lists rather than maps because viper lowercases map keys and element
// names are case-sensitive.
type VisibilityConfig struct {
	Defaults []FlagConfig `yaml:"defaults" json:"defaults"`
	Rules    []RuleConfig `yaml:"rules" json:"rules"`
}

type FlagConfig struct {
	Element string `yaml:"element" json:"element"`
	Visible bool   `yaml:"visible" json:"visible"`
}

type RuleConfig struct {
	Element  string   `yaml:"element" json:"element"`
	Requires []string `yaml:"requires" json:"requires"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SetDefaults registers default values on v. Keys must be known to viper for
// AutomaticEnv overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pool.capacity", pool.DefaultCapacity)
	v.SetDefault("pool.prefill", true)
	v.SetDefault("visibility.defaults", []FlagConfig{})
	v.SetDefault("visibility.rules", []RuleConfig{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// ConfigureEnv enables SURFACEPOOL_* environment overrides on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by the global viper
// instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, surfaceerrors.NewConfigError(surfaceerrors.ErrCodeConfigInvalid,
			"failed to decode configuration", err)
	}

	// Environment overrides arrive as strings and are not always picked up by
	// Unmarshal for nested keys.
	if v.IsSet("pool.capacity") {
		config.Pool.Capacity = v.GetInt("pool.capacity")
	}
	if v.IsSet("pool.prefill") {
		config.Pool.Prefill = v.GetBool("pool.prefill")
	}

	config.Logging.Level = strings.ToLower(strings.TrimSpace(config.Logging.Level))
	config.Logging.Format = strings.ToLower(strings.TrimSpace(config.Logging.Format))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Capacity: pool.DefaultCapacity,
			Prefill:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DependencyRules converts the configured rules. When none are configured the
// built-in rule table is returned.
func (c *VisibilityConfig) DependencyRules() ([]types.DependencyRule, error) {
	if len(c.Rules) == 0 {
		return visibility.DefaultRules(), nil
	}

	rules := make([]types.DependencyRule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		element, err := types.ParseElementKey(rc.Element)
		if err != nil {
			return nil, fieldError(err, "visibility.rules", i)
		}
		rule := types.DependencyRule{Element: element}
		for _, raw := range rc.Requires {
			prereq, err := types.ParseElementKey(raw)
			if err != nil {
				return nil, fieldError(err, "visibility.rules", i)
			}
			rule.Requires = append(rule.Requires, prereq)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// InitialFlags converts the configured base flag defaults.
func (c *VisibilityConfig) InitialFlags() (map[types.ElementKey]bool, error) {
	flags := make(map[types.ElementKey]bool, len(c.Defaults))
	for i, fc := range c.Defaults {
		key, err := types.ParseElementKey(fc.Element)
		if err != nil {
			return nil, fieldError(err, "visibility.defaults", i)
		}
		flags[key] = fc.Visible
	}

	return flags, nil
}

// LoggerConfig builds the logger configuration. Validate must have passed.
func (c *LoggingConfig) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Level); err == nil {
		cfg.Level = level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}

	return cfg
}

func fieldError(err error, field string, index int) error {
	return &surfaceerrors.SurfaceError{
		Type:    surfaceerrors.ErrorTypeValidation,
		Code:    surfaceerrors.ErrCodeInvalidElement,
		Message: "invalid element in " + field,
		Cause:   err,
		Context: map[string]interface{}{"field": field, "index": index},
	}
}
