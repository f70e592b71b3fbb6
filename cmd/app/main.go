package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chequebook/internal/adapters/cli"
	"chequebook/internal/adapters/repl"
	"chequebook/internal/bootstrap"
	"chequebook/internal/config"
	"chequebook/internal/core"
	"chequebook/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Commands print their results on stdout; logs go to stderr.
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build application: %v\n", err)
		return 1
	}
	defer rt.Close()

	operator := os.Getenv("CHEQUE_OPERATOR")
	if operator == "" {
		operator = os.Getenv("USER")
	}

	if len(os.Args) < 2 {
		err = repl.Run(ctx, rt.Service, os.Stdin, os.Stdout, operator)
	} else {
		err = cli.Run(ctx, rt.Service, os.Args[1:], operator, os.Stdout)
	}
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp), errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, cli.ErrUsage):
		return 2
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", core.KindOf(err), err)
		return 1
	}
}
