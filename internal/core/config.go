package core

import (
	"runtime"
	"time"
)

// DefaultMaxStackSize is the call-stack limit applied to every execution
// context unless configured otherwise.
const DefaultMaxStackSize = 256 * 1024

// EngineConfig holds runtime configuration for the execution core.
type EngineConfig struct {
	Workers          int           // dispatch pool size; 0 means runtime.NumCPU()
	QueueLimit       int           // max queued units of work; 0 means unbounded
	MaxStackSize     int           // per-context call stack limit in bytes
	MemoryLimitMB    int           // per-context heap limit; 0 means unlimited
	ExecutionTimeout time.Duration // per-evaluation budget; 0 disables the watchdog
	HostCallTimeout  time.Duration // per host operation; 0 means no deadline
	ContextMaxUses   int           // rebuild a context after this many evaluations; 0 never
}

// WithDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg EngineConfig) WithDefaults() EngineConfig {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxStackSize <= 0 {
		cfg.MaxStackSize = DefaultMaxStackSize
	}
	return cfg
}

// Runtime returns the engine-level portion of the configuration.
func (cfg EngineConfig) Runtime() RuntimeConfig {
	return RuntimeConfig{
		MaxStackSize:  cfg.MaxStackSize,
		MemoryLimitMB: cfg.MemoryLimitMB,
	}
}
