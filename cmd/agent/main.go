package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/abdel0909/mc-bot/internal/agent/session"
	"github.com/abdel0909/mc-bot/internal/bridge"
	"github.com/abdel0909/mc-bot/internal/clock"
	"github.com/abdel0909/mc-bot/internal/config"
	"github.com/abdel0909/mc-bot/internal/persistence/indexdb"
	"github.com/abdel0909/mc-bot/internal/persistence/journal"
	"github.com/abdel0909/mc-bot/internal/persistence/record"
)

func main() {
	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lmicroseconds)

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatalf("load .env: %v", err)
	}
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	flags := config.BindFlags(pflag.CommandLine, &cfg)
	pflag.Parse()
	flags.Apply()
	if err := cfg.Finish(); err != nil {
		if errors.Is(err, config.ErrMissingHost) {
			logger.Printf("MC_HOST is required (set it in the environment, .env or --host)")
			os.Exit(1)
		}
		logger.Fatalf("config: %v", err)
	}

	recorders := record.Multi{journal.Open(cfg.JournalDir())}
	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(cfg.IndexDBPath())
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		if err := idx.UpsertConfig(context.Background(), "tuning", cfg.Tuning); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		recorders = append(recorders, idx)
	}
	defer func() {
		if err := recorders.Close(); err != nil {
			logger.Printf("close recorders: %v", err)
		}
	}()

	dialer := bridge.NewDialer(bridge.DialerConfig{
		StateFile: cfg.StateFile(),
		Scaffold:  cfg.Tuning.Build.Materials,
		Log:       log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lmicroseconds),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent := session.New(
		session.FromConfig(cfg),
		dialer,
		clock.Real(),
		log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds),
		recorders,
	)
	logger.Printf("starting host=%s port=%d user=%s auth=%s version=%q data=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Auth, cfg.Version, cfg.DataDir)
	if err := agent.Run(ctx); err != nil {
		logger.Printf("run: %v", err)
	}
	logger.Printf("shutting down")
}
