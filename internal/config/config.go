// Package config loads sidecar configuration. Sources apply in order:
// built-in defaults, an optional YAML file, a .env file and EVALJS_*
// environment variables; command-line flags are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/logging"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "EVALJS_"

// Config is the full sidecar configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Redis   RedisConfig   `yaml:"redis"`
	Engine  EngineConfig  `yaml:"engine"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Log     LogConfig     `yaml:"log"`
}

// RedisConfig describes the backing server scripts call into.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// EngineConfig mirrors core.EngineConfig.
type EngineConfig struct {
	Workers          int           `yaml:"workers"`
	QueueLimit       int           `yaml:"queue_limit"`
	MaxStackSize     int           `yaml:"max_stack_size"`
	MemoryLimitMB    int           `yaml:"memory_limit_mb"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	HostCallTimeout  time.Duration `yaml:"host_call_timeout"`
	ContextMaxUses   int           `yaml:"context_max_uses"`
}

// ScriptsConfig controls the script cache and the transpile step.
type ScriptsConfig struct {
	Store     string `yaml:"store"`     // SQLite path; ":memory:" keeps scripts in memory
	Transpile string `yaml:"transpile"` // "", "off", "js" or "ts"
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:6380",
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			DialTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			MaxStackSize: core.DefaultMaxStackSize,
		},
		Scripts: ScriptsConfig{
			Store: ":memory:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from path (skipped when empty), then
// envFile (skipped when empty or missing), then the process environment.
// It does not validate; call Validate once flags are applied.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// ApplyEnv overrides fields from EVALJS_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN", &c.Listen)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_USERNAME", &c.Redis.Username)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	dur("REDIS_DIAL_TIMEOUT", &c.Redis.DialTimeout)
	num("WORKERS", &c.Engine.Workers)
	num("QUEUE_LIMIT", &c.Engine.QueueLimit)
	num("MAX_STACK_SIZE", &c.Engine.MaxStackSize)
	num("MEMORY_LIMIT_MB", &c.Engine.MemoryLimitMB)
	dur("EXECUTION_TIMEOUT", &c.Engine.ExecutionTimeout)
	dur("HOST_CALL_TIMEOUT", &c.Engine.HostCallTimeout)
	num("CONTEXT_MAX_USES", &c.Engine.ContextMaxUses)
	str("SCRIPT_STORE", &c.Scripts.Store)
	str("TRANSPILE", &c.Scripts.Transpile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// minStackSize is the smallest stack limit an engine can start with.
const minStackSize = 16 * 1024

// Validate rejects configurations the sidecar cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis.db must not be negative"))
	}
	e := c.Engine
	if e.Workers < 0 {
		errs = append(errs, errors.New("engine.workers must not be negative"))
	}
	if e.QueueLimit < 0 {
		errs = append(errs, errors.New("engine.queue_limit must not be negative"))
	}
	if e.MaxStackSize != 0 && e.MaxStackSize < minStackSize {
		errs = append(errs, fmt.Errorf("engine.max_stack_size must be at least %d bytes", minStackSize))
	}
	if e.MemoryLimitMB < 0 {
		errs = append(errs, errors.New("engine.memory_limit_mb must not be negative"))
	}
	if e.ExecutionTimeout < 0 || e.HostCallTimeout < 0 {
		errs = append(errs, errors.New("engine timeouts must not be negative"))
	}
	if e.ContextMaxUses < 0 {
		errs = append(errs, errors.New("engine.context_max_uses must not be negative"))
	}
	switch strings.ToLower(c.Scripts.Transpile) {
	case "", "off", "js", "ts":
	default:
		errs = append(errs, fmt.Errorf("scripts.transpile must be off, js or ts, got %q", c.Scripts.Transpile))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Core converts the engine section for the execution core.
func (c *Config) Core() core.EngineConfig {
	return core.EngineConfig{
		Workers:          c.Engine.Workers,
		QueueLimit:       c.Engine.QueueLimit,
		MaxStackSize:     c.Engine.MaxStackSize,
		MemoryLimitMB:    c.Engine.MemoryLimitMB,
		ExecutionTimeout: c.Engine.ExecutionTimeout,
		HostCallTimeout:  c.Engine.HostCallTimeout,
		ContextMaxUses:   c.Engine.ContextMaxUses,
	}
}

// TranspileEnabled reports whether scripts go through the transpiler.
func (c *Config) TranspileEnabled() bool {
	t := strings.ToLower(c.Scripts.Transpile)
	return t != "" && t != "off"
}
