package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/stagetrack/internal/cli"
	"github.com/example/stagetrack/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "stagetrack",
		Short:   "Stage duration tracking for Insightly opportunities",
		Version: version.String(),
		Long: `stagetrack records, for every open Insightly opportunity, the pipeline
stage it was last seen in, the day that stage was first observed and how
many days it has stayed there. Run it once a day from cron.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.RunCmd())

	// Diagnostics
	rootCmd.AddCommand(cli.FieldsCmd())
	rootCmd.AddCommand(cli.StagesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
