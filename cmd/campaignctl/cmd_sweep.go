package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"minefleet/fleet/leasing"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release leases orphaned by dead daemons",
	Long: `Releases every lease strictly older than --max-age in one pass. The
fleet daemon runs this on an interval; run it by hand after killing a
daemon ungracefully or to shorten the reclaim window.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	reclaimer := leasing.NewReclaimer(service, leases, nil, 0, sweepMaxAge)
	reclaimed, err := reclaimer.Sweep(ctx, sweepMaxAge)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Printf("reclaimed %d leases older than %s\n", reclaimed, sweepMaxAge)
	return nil
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", leasing.DefaultMaxLeaseAge, "Release leases older than this")
}
