package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryguy/evaljs/internal/config"
	"github.com/cryguy/evaljs/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "evaljs",
	Short: "Redis sidecar that evaluates JavaScript functions",
	Long: `evaljs - Run JavaScript functions next to Redis.

Clients send EVALJS <code> <numkeys> [key ...] [arg ...] over the Redis
protocol. The function body sees KEYS and ARGV, can reach the backing
server through redis.call and redis.pcall, and its return value becomes
the reply.

Configuration comes from built-in defaults, an optional YAML file, a .env
file, EVALJS_* environment variables and finally command-line flags.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load if present")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().String("redis", "", "Backing Redis address (host:port)")
	rootCmd.PersistentFlags().String("transpile", "", "Transpile scripts first: off, js, ts")
}

// loadConfig builds the configuration for cmd and installs the logger.
// Flags the user set win over every other source.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, nil, err
	}

	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	override("log-level", &cfg.Log.Level)
	override("log-format", &cfg.Log.Format)
	override("redis", &cfg.Redis.Addr)
	override("transpile", &cfg.Scripts.Transpile)
	override("listen", &cfg.Listen)
	override("script-store", &cfg.Scripts.Store)
	if flags.Changed("workers") {
		cfg.Engine.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		cfg.Engine.ExecutionTimeout, _ = flags.GetDuration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
