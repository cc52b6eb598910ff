package config

// Default node settings.
const (
	// DefaultPort is the API listen port.
	DefaultPort = 8080

	// DefaultBlockTimeMs is the block production interval.
	DefaultBlockTimeMs = 5000

	// DefaultNThreshold is the minimum live participants per block. Kept at
	// 1 for bootstrap; production networks raise it.
	DefaultNThreshold = 1

	// DefaultFreshnessMs is the heartbeat acceptance window.
	DefaultFreshnessMs = 60_000

	// DefaultBaseReward is the minted reward per unit of weight.
	DefaultBaseReward = 1.0

	// DefaultLogLevel is the default logging verbosity.
	DefaultLogLevel = "info"
)

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Port:             DefaultPort,
		DataDir:          DefaultDataDir(),
		BlockTimeMs:      DefaultBlockTimeMs,
		NThreshold:       DefaultNThreshold,
		FreshnessMs:      DefaultFreshnessMs,
		BaseReward:       DefaultBaseReward,
		StrictBiometrics: true,
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}
