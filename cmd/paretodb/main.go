// Command paretodb drives a shared optimization ledger from the shell.
//
// Every subcommand is a short-lived process attached to one run directory,
// so optimizers, evaluation workers and a watcher can run side by side:
//
//	paretodb init     --dir run --config problem.yaml
//	paretodb seed     --dir run --x seeds.csv --y seeds_y.csv
//	paretodb optimize --dir run
//	paretodb evaluate --dir run --pending
//	paretodb watch    --dir run --max-valid 100
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/paretodb"
)

// app holds the global flags and the process identity.
type app struct {
	dir         string
	configPath  string
	logLevel    string
	logFormat   string
	lockTimeout time.Duration

	workerID string
	logger   *paretodb.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{workerID: uuid.NewString()}

	root := &cobra.Command{
		Use:           "paretodb",
		Short:         "Shared ledger for multi-objective optimization runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogger()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.dir, "dir", "d", ".", "run directory")
	pf.StringVarP(&a.configPath, "config", "c", "", "problem config (default: latest snapshot in the run directory)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")
	pf.DurationVar(&a.lockTimeout, "lock-timeout", 0, "give up waiting for the ledger lock after this long (0 waits)")

	root.AddCommand(
		newInitCmd(a),
		newSeedCmd(a),
		newConfigCmd(a),
		newOptimizeCmd(a),
		newPredictCmd(a),
		newEvaluateCmd(a),
		newUpdateCmd(a),
		newStatusCmd(a),
		newWatchCmd(a),
		newCorrectCmd(a),
		newLoadCmd(a),
		newArchiveCmd(a),
	)
	return root
}

func (a *app) setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}

	switch strings.ToLower(a.logFormat) {
	case "text":
		a.logger = paretodb.NewTextLogger(level)
	case "json":
		a.logger = paretodb.NewJSONLogger(level)
	default:
		return fmt.Errorf("--log-format: unknown format %q", a.logFormat)
	}
	a.logger = a.logger.WithWorker(a.workerID).WithDir(a.dir)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, paretodb.ErrInterrupted) {
		// 128 + SIGINT, like a shell.
		os.Exit(130)
	}
	os.Exit(1)
}
