package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryguy/evaljs"
	"github.com/cryguy/evaljs/internal/host"
	"github.com/cryguy/evaljs/internal/scriptstore"
	"github.com/cryguy/evaljs/internal/server"
	"github.com/cryguy/evaljs/internal/transpile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve EVALJS over the Redis protocol",
	Long: `Listen for Redis protocol clients and evaluate their scripts.

Commands:
  EVALJS <code> <numkeys> [key ...] [arg ...]
  EVALJSSHA <sha1> <numkeys> [key ...] [arg ...]
  JSSCRIPT LOAD <code> | EXISTS <sha1> ... | FLUSH
  PING, INFO`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (default 127.0.0.1:6380)")
	serveCmd.Flags().Int("workers", 0, "Engine workers (default: number of CPUs)")
	serveCmd.Flags().Duration("timeout", 0, "Per-script execution timeout (0 disables)")
	serveCmd.Flags().String("script-store", "", "SQLite file for JSSCRIPT LOAD (default in memory)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout+time.Second)
	h, err := host.Dial(dialCtx, host.Options{
		Addr:        cfg.Redis.Addr,
		Username:    cfg.Redis.Username,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	cancel()
	if err != nil {
		return err
	}
	defer h.Close()

	execOpts := []evaljs.Option{evaljs.WithHost(h), evaljs.WithLogger(logger)}
	var storeOpts []scriptstore.Option
	if cfg.TranspileEnabled() {
		loader, err := transpile.ParseLoader(cfg.Scripts.Transpile)
		if err != nil {
			return err
		}
		tr := transpile.New(loader)
		execOpts = append(execOpts, evaljs.WithTransform(tr.Program))
		storeOpts = append(storeOpts, scriptstore.WithCompiler(tr.Program))
	}

	store, err := scriptstore.Open(cfg.Scripts.Store, storeOpts...)
	if err != nil {
		return fmt.Errorf("opening script store: %w", err)
	}
	defer store.Close()

	eng := evaljs.New(cfg.Core(), execOpts...)
	defer eng.Close()

	srv := server.New(eng.Executor(),
		server.WithScripts(store),
		server.WithLogger(logger),
		server.WithVersion(version),
	)
	logger.Info("serving", "backend", evaljs.Backend(), "redis", cfg.Redis.Addr, "transpile", cfg.Scripts.Transpile)
	return srv.ListenAndServe(ctx, cfg.Listen)
}
