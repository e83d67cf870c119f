package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"minefleet/fleet/database/models"
)

var (
	retireStatus string
	retireReason string
	retireNotes  string
)

// accountsCmd is the parent command for pool operations
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect and retire pool accounts",
	Long: `The account pool backs every campaign. These commands summarize pool
health, list which accounts hold claimed drops, and retire accounts that
were sold or given away together with their drops.

Examples:
  campaignctl accounts stats
  campaignctl accounts with-drops
  campaignctl accounts retire miner17 miner18 --status sold --reason "sold with rust-drops"`,
}

var accountsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pool totals",
	RunE:  runAccountsStats,
}

var accountsWithDropsCmd = &cobra.Command{
	Use:   "with-drops",
	Short: "List accounts holding claimed drops, per campaign",
	RunE:  runAccountsWithDrops,
}

var accountsRetireCmd = &cobra.Command{
	Use:   "retire [username...]",
	Short: "Retire accounts that left the pool",
	Long: `Marks accounts as sold or given away. Retired accounts keep their
campaign progress rows for reporting but are never claimed again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAccountsRetire,
}

func runAccountsStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	stats, err := service.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pool stats: %w", err)
	}

	fmt.Printf("total:        %d\n", stats.Total)
	fmt.Printf("available:    %d\n", stats.Available)
	fmt.Printf("in progress:  %d\n", stats.InProgress)
	fmt.Printf("invalid:      %d\n", stats.Invalid)
	return nil
}

func runAccountsWithDrops(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	details, err := campaigns.ListProgressDetails(ctx)
	if err != nil {
		return fmt.Errorf("failed to list campaign progress: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tCAMPAIGN\tSTATUS\tDROPS\tSOLD")
	rows := 0
	for _, d := range details {
		if d.DropsClaimed == 0 && d.Status != models.ProgressCompleted {
			continue
		}
		sold := ""
		if d.IsSold {
			sold = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			d.Username, d.CampaignName, d.Status, d.DropsClaimed, d.TotalDrops, sold)
		rows++
	}
	if rows == 0 {
		fmt.Println("no accounts hold claimed drops")
		return nil
	}
	return w.Flush()
}

func runAccountsRetire(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	var status models.AccountStatus
	switch retireStatus {
	case "sold":
		status = models.AccountStatusSold
	case "given_away":
		status = models.AccountStatusGivenAway
	default:
		return fmt.Errorf("invalid --status %q, want sold or given_away", retireStatus)
	}

	for _, username := range args {
		account, err := service.AccountByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", username, err)
		}
		if err = service.Dispose(ctx, account.ID, status, retireReason, retireNotes); err != nil {
			return fmt.Errorf("failed to retire %q: %w", username, err)
		}
		fmt.Printf("retired %s (%s)\n", username, status)
	}
	return nil
}

func init() {
	accountsRetireCmd.Flags().StringVar(&retireStatus, "status", "sold", "Disposal status: sold or given_away")
	accountsRetireCmd.Flags().StringVar(&retireReason, "reason", "", "Why the account left the pool")
	accountsRetireCmd.Flags().StringVar(&retireNotes, "notes", "", "Free-form notes, e.g. buyer or price")

	accountsCmd.AddCommand(accountsStatsCmd)
	accountsCmd.AddCommand(accountsWithDropsCmd)
	accountsCmd.AddCommand(accountsRetireCmd)
}
