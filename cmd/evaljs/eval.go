package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cryguy/evaljs"
	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/host"
	"github.com/cryguy/evaljs/internal/transpile"
)

var evalCmd = &cobra.Command{
	Use:   "eval <code> <numkeys> [key ...] [arg ...]",
	Short: "Evaluate one script locally",
	Long: `Evaluate a single script without starting the server and print the
reply the way redis-cli would.

The code argument is the function body. Use @path to read it from a file
or - to read it from stdin. redis.call only works when --redis is set.

  evaljs eval 'return ARGV[0] * 2;' 0 21
  evaljs eval @counter.js 1 hits --redis 127.0.0.1:6379`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().Duration("timeout", 0, "Execution timeout (0 disables)")
	rootCmd.AddCommand(evalCmd)
}

// errReply marks an error reply that was already printed.
var errReply = errors.New("script replied with an error")

func runEval(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	code, err := readCode(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	req, err := core.ParseRequest(append([]string{"eval", code}, args[1:]...))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engineCfg := cfg.Core()
	engineCfg.Workers = 1
	opts := []evaljs.Option{evaljs.WithLogger(logger)}

	if cmd.Flags().Changed("redis") {
		h, err := host.Dial(ctx, host.Options{
			Addr:        cfg.Redis.Addr,
			Username:    cfg.Redis.Username,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return err
		}
		defer h.Close()
		opts = append(opts, evaljs.WithHost(h))
	}

	if cfg.TranspileEnabled() {
		loader, err := transpile.ParseLoader(cfg.Scripts.Transpile)
		if err != nil {
			return err
		}
		opts = append(opts, evaljs.WithTransform(transpile.New(loader).Program))
	}

	eng := evaljs.New(engineCfg, opts...)
	defer eng.Close()

	v := eng.Do(ctx, req)
	fmt.Fprintln(cmd.OutOrStdout(), v.String())
	if v.IsError() {
		return errReply
	}
	return nil
}

func readCode(arg string, stdin io.Reader) (string, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return arg, nil
}
