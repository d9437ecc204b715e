package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"penny/internal/cli"
	applog "penny/internal/log"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pennyctl",
		Short: "Inspect and load penny expense data from the command line",
		Long: `pennyctl works directly against the configured penny store.

It reads the same environment (and .env file) as the penny server, so
DATA_BACKEND, SQLITE_DB_PATH and RULES_FILE select what it operates on.`,
		SilenceUsage: true,
	}

	root.AddCommand(categorizeCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(importCmd())
	root.AddCommand(dashboardCmd())
	return root
}

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger(applog.ComponentCLI)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
