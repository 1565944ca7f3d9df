package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FlatDrop/internal/app"
	"github.com/dharsanguruparan/FlatDrop/internal/config"
	"github.com/dharsanguruparan/FlatDrop/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flatdrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flatdrop",
		Short: "Flatten documents into image-only PDFs",
		Long: `FlatDrop rasterizes every page of a document and reassembles the images into a
new PDF, so no text or vector content survives. Run the HTTP service with
"serve", or flatten files locally with "convert".`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newConvertCmd(),
		newInspectCmd(),
		newRemainingCmd(),
		newHistoryCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (configured from the environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			a, err := app.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}
