package config

import "fmt"

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", c.Port)
	}
	if c.BlockTimeMs == 0 {
		return fmt.Errorf("block-time-ms must be positive")
	}
	if c.NThreshold < 1 {
		return fmt.Errorf("n-threshold must be at least 1, got %d", c.NThreshold)
	}
	if c.FreshnessMs == 0 {
		return fmt.Errorf("freshness-ms must be positive")
	}
	if c.BaseReward < 0 {
		return fmt.Errorf("base-reward must be non-negative, got %v", c.BaseReward)
	}
	if !c.Simulate && c.DataDir == "" {
		return fmt.Errorf("data-dir is required unless --simulate is set")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	return nil
}
