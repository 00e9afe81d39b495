package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ramsey-B/qtlcandidateload/config"
	"github.com/Ramsey-B/qtlcandidateload/pkg/job"
	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var envFile string
	var dryRun bool
	flag.StringVar(&envFile, "env-file", "", "dotenv file loaded before reading the environment")
	flag.BoolVar(&dryRun, "dry-run", false, "derive and write the bcp file without touching the database")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return job.ExitFailure
	}
	if dryRun {
		cfg.DryRun = true
	}

	logger, flush, err := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return job.ExitFailure
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = job.NewRunner(cfg, logger).Run(ctx)
	return job.ExitCode(err)
}
