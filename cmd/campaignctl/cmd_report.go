package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var exportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Per-campaign mining report",
	Long: `Prints one row per campaign with how many accounts finished it, are
mid-mining, stopped partway, or were sold with their drops.`,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the account pool to CSV",
	Long: `Writes one CSV row per account with pool state, disposal info and the
campaigns it mined. Credentials are never exported.`,
	RunE: runExport,
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	list, err := service.Campaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("no campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tGAME\tCOMPLETED\tIN_PROGRESS\tPARTIAL\tNOT_STARTED\tSOLD\tAVAILABLE")
	for _, c := range list {
		stats, err := service.CampaignStats(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load stats for %q: %w", c.Name, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			c.Name, c.GameName, stats.Completed, stats.InProgress,
			stats.Partial, stats.NotStarted, stats.SoldWithCampaign, stats.Available)
	}
	return w.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	pool, err := accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	details, err := campaigns.ListProgressDetails(ctx)
	if err != nil {
		return fmt.Errorf("failed to list campaign progress: %w", err)
	}

	// campaign summary per username, e.g. "rust-drops:completed;sea-of-thieves:partial"
	mined := make(map[string][]string)
	for _, d := range details {
		mined[d.Username] = append(mined[d.Username], fmt.Sprintf("%s:%s", d.CampaignName, d.Status))
	}

	file, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", exportOut, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	header := []string{
		"username", "user_id", "status", "valid", "in_use",
		"invalid_reason", "disposal_reason", "disposal_notes",
		"campaigns", "created_at", "last_used",
	}
	if err = cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, a := range pool {
		lastUsed := ""
		if !a.LastUsed.IsZero() {
			lastUsed = a.LastUsed.Format(time.RFC3339)
		}
		row := []string{
			a.Username,
			a.UserID,
			string(a.Status),
			strconv.FormatBool(a.IsValid),
			strconv.FormatBool(a.InUse),
			a.InvalidReason,
			a.DisposalReason,
			a.DisposalNotes,
			strings.Join(mined[a.Username], ";"),
			a.CreatedAt.Format(time.RFC3339),
			lastUsed,
		}
		if err = cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	fmt.Printf("exported %d accounts to %s\n", len(pool), exportOut)
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "accounts.csv", "Output CSV path")
}
