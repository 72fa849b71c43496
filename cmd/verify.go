package cmd

import (
	"context"
	"time"

	"sjsage522/listingworker/config"
	"sjsage522/listingworker/internal/verifier"
	"sjsage522/listingworker/logger"

	"github.com/spf13/cobra"
)

type verifyParams struct {
	BatchSize int
	Hours     int
	Delay     float64
	All       bool
}

func verifyStatusCommand() *cobra.Command {
	p := verifyParams{}

	cmd := &cobra.Command{
		Use:   "verify-status",
		Short: "Verify whether tracked listings are sold, removed or still available",
		Long: `Fetch the pages of listings not seen recently and update is_visible,
is_active and is_sold. Run daily to catch sold items.

Examples:
  listingworker verify-status              # 100 items, 24h
  listingworker verify-status --all        # inactive items too
  listingworker verify-status -b 50 -H 12  # 50 items, 12 hours
  listingworker verify-status -d 3.0       # slower, avoids 403`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyStatus(cmd.Context(), p)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&p.BatchSize, "batch-size", "b", verifier.DefaultBatchSize, "Number of listings to verify")
	flags.IntVarP(&p.Hours, "hours", "H", 24, "Check listings not seen in this many hours")
	flags.Float64VarP(&p.Delay, "delay", "d", 2.0, "Delay between requests in seconds")
	flags.BoolVarP(&p.All, "all", "a", false, "Check inactive listings too")

	return cmd
}

func runVerifyStatus(ctx context.Context, p verifyParams) error {
	services, err := initializeServices(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer services.Cleanup()

	v := verifier.New(services.Store, services.Failures, verifier.Options{
		BatchSize:       p.BatchSize,
		Since:           time.Duration(p.Hours) * time.Hour,
		Delay:           time.Duration(p.Delay * float64(time.Second)),
		IncludeInactive: p.All,
		Timeout:         services.Config.HTTPTimeout,
	})
	stats, err := v.Run(ctx)
	if err != nil {
		return err
	}

	logger.Default.Info().
		Int("checked", stats.Checked).
		Int("sold", stats.Sold).
		Int("removed", stats.Removed).
		Msg("Status verification done")
	return nil
}
