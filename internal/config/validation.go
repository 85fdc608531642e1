package config

import (
	"fmt"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/types"
)

var validFormats = map[string]bool{"text": true, "json": true}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	collector := surfaceerrors.NewErrorCollector()

	validatePoolConfig(&c.Pool, collector)
	validateVisibilityConfig(&c.Visibility, collector)
	validateLoggingConfig(&c.Logging, collector)

	if !collector.HasErrors() {
		return nil
	}

	return surfaceerrors.NewConfigError(surfaceerrors.ErrCodeConfigInvalid,
		fmt.Sprintf("invalid configuration (%d problems)", collector.Count()), collector.Err())
}

func validatePoolConfig(config *PoolConfig, collector *surfaceerrors.ErrorCollector) {
	if config.Capacity < 0 {
		collector.AddError(invalidField("pool.capacity", config.Capacity,
			fmt.Sprintf("capacity %d must not be negative", config.Capacity)))
	}
}

func validateVisibilityConfig(config *VisibilityConfig, collector *surfaceerrors.ErrorCollector) {
	seen := make(map[string]bool, len(config.Defaults))
	for i, flag := range config.Defaults {
		if _, err := types.ParseElementKey(flag.Element); err != nil {
			collector.AddError(fieldError(err, "visibility.defaults", i))
			continue
		}
		if seen[flag.Element] {
			collector.AddError(invalidField("visibility.defaults", flag.Element,
				fmt.Sprintf("element %s is listed more than once", flag.Element)))
		}
		seen[flag.Element] = true
	}

	for i, rule := range config.Rules {
		if _, err := types.ParseElementKey(rule.Element); err != nil {
			collector.AddError(fieldError(err, "visibility.rules", i))
		}
		if len(rule.Requires) == 0 {
			collector.AddError(invalidField("visibility.rules", rule.Element,
				fmt.Sprintf("rule %d for %q has no prerequisites", i, rule.Element)))
		}
		for _, raw := range rule.Requires {
			if _, err := types.ParseElementKey(raw); err != nil {
				collector.AddError(fieldError(err, "visibility.rules", i))
			}
		}
	}
}

func validateLoggingConfig(config *LoggingConfig, collector *surfaceerrors.ErrorCollector) {
	if config.Level != "" {
		if _, err := logging.ParseLevel(config.Level); err != nil {
			collector.AddError(invalidField("logging.level", config.Level, err.Error()))
		}
	}
	if config.Format != "" && !validFormats[config.Format] {
		collector.AddError(invalidField("logging.format", config.Format,
			fmt.Sprintf("unknown log format %q (supported: text, json)", config.Format)))
	}
}

func invalidField(field string, value interface{}, message string) error {
	return surfaceerrors.NewValidationError(surfaceerrors.ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithContext("value", value)
}
