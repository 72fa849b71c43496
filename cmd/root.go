// Package cmd implements the command-line interface of the listing worker.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/listingworker/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "listingworker",
	Short: "Marketplace listing crawler with price history",
	Long: `Crawls marketplace catalog pages into Postgres, keeping a price history per
listing, and runs the maintenance jobs that backfill details and verify status.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(scrapeCommand())
	rootCmd.AddCommand(scrapeDetailsCommand())
	rootCmd.AddCommand(verifyStatusCommand())
	rootCmd.AddCommand(categoriesCommand())
	rootCmd.AddCommand(platformsCommand())
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running job.
func Execute() error {
	// Load .env file early so environment variables are available
	_ = godotenv.Load()

	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
