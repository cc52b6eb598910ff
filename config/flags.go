package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// API
	Port int

	// Storage
	DataDir  string
	Simulate bool

	// Consensus
	BlockTimeMs uint64
	NThreshold  int
	FreshnessMs uint64
	BaseReward  float64
	LaxBio      bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string
}

// ParseFlags parses command-line flags from os.Args.
func ParseFlags() (*Flags, error) {
	return parseFlags(os.Args[1:])
}

func parseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("pulsed", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// API
	fs.IntVar(&f.Port, "port", DefaultPort, "API listen port")

	// Storage
	fs.StringVar(&f.DataDir, "data-dir", "", "Data directory path")
	fs.BoolVar(&f.Simulate, "simulate", false, "Run without persistence and feed simulated heartbeats")

	// Consensus
	fs.Uint64Var(&f.BlockTimeMs, "block-time-ms", DefaultBlockTimeMs, "Block interval in milliseconds")
	fs.IntVar(&f.NThreshold, "n-threshold", DefaultNThreshold, "Minimum live participants per block")
	fs.Uint64Var(&f.FreshnessMs, "freshness-ms", DefaultFreshnessMs, "Heartbeat freshness window in milliseconds")
	fs.Float64Var(&f.BaseReward, "base-reward", DefaultBaseReward, "Minted reward per unit of weight")
	fs.BoolVar(&f.LaxBio, "lax-biometrics", false, "Disable biometric plausibility checks")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Log JSON to stdout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			f.Help = true
			return f, nil
		}
		return nil, err
	}
	f.Args = fs.Args()
	return f, nil
}

// Load parses flags and builds a validated Config.
func Load() (*Config, *Flags, error) {
	flags, err := ParseFlags()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := fromFlags(flags)
	if err != nil {
		return nil, flags, err
	}
	return cfg, flags, nil
}

func fromFlags(f *Flags) (*Config, error) {
	cfg := Default()
	cfg.Port = f.Port
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	cfg.Simulate = f.Simulate
	cfg.BlockTimeMs = f.BlockTimeMs
	cfg.NThreshold = f.NThreshold
	cfg.FreshnessMs = f.FreshnessMs
	cfg.BaseReward = f.BaseReward
	cfg.StrictBiometrics = !f.LaxBio
	cfg.Log = LogConfig{Level: f.LogLevel, File: f.LogFile, JSON: f.LogJSON}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage prints flag help to stderr.
func Usage() {
	fmt.Fprintf(os.Stderr, `Pulse node daemon.

Usage:
  pulsed [flags]

Flags:
  --port <n>             API listen port (default %d)
  --data-dir <path>      Data directory
  --simulate             No persistence; simulated devices
  --block-time-ms <n>    Block interval (default %d)
  --n-threshold <n>      Proof-of-Life threshold (default %d)
  --freshness-ms <n>     Heartbeat window (default %d)
  --base-reward <x>      Reward per weight unit (default %v)
  --lax-biometrics       Disable biometric plausibility checks
  --log-level <level>    debug, info, warn, error
  --log-file <path>      Also log to file (JSON)
  --log-json             JSON logs on stdout
`, DefaultPort, DefaultBlockTimeMs, DefaultNThreshold, DefaultFreshnessMs, DefaultBaseReward)
}
