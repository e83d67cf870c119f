package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"minefleet/fleet/database/models"
)

var (
	campaignsAll      bool
	campaignGame      string
	campaignDrops     int
	campaignStreamers string
	campaignInactive  bool
)

// campaignsCmd is the parent command for campaign operations
var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Manage drop campaigns",
	Long: `Campaigns describe a game's drop event: its name, how many drops a
fully mined account collects, and the streamer list miners watch.

Examples:
  campaignctl campaigns list --all
  campaignctl campaigns add rust-drops --game Rust --drops 8 --streamers spaces://minefleet/lists/rust.txt
  campaignctl campaigns show rust-drops
  campaignctl campaigns find rst`,
}

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignsList,
}

var campaignsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a new campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignsAdd,
}

var campaignsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one campaign and its per-account progress summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignsShow,
}

var campaignsFindCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Fuzzy-search campaigns by name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCampaignsFind,
}

func runCampaignsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	var (
		list []*models.Campaign
		err  error
	)
	if campaignsAll {
		list, err = service.Campaigns(ctx)
	} else {
		list, err = service.ActiveCampaigns(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("no campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGAME\tDROPS\tACTIVE\tSTREAMERS\tCREATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
			c.Name, c.GameName, c.TotalDrops, c.IsActive,
			c.StreamerFile, c.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runCampaignsAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	campaign := &models.Campaign{
		Name:         args[0],
		GameName:     campaignGame,
		TotalDrops:   campaignDrops,
		StreamerFile: campaignStreamers,
		IsActive:     !campaignInactive,
	}
	if err := service.CreateCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	fmt.Printf("created campaign %q (id %d, %d drops)\n", campaign.Name, campaign.ID, campaign.TotalDrops)
	return nil
}

func runCampaignsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	campaign, err := service.CampaignByName(ctx, args[0])
	if err != nil {
		return err
	}
	stats, err := service.CampaignStats(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to load campaign stats: %w", err)
	}

	fmt.Printf("%s (id %d)\n", campaign.Name, campaign.ID)
	fmt.Printf("  game:       %s\n", campaign.GameName)
	fmt.Printf("  drops:      %d\n", campaign.TotalDrops)
	fmt.Printf("  streamers:  %s\n", campaign.StreamerFile)
	fmt.Printf("  active:     %t\n", campaign.IsActive)
	fmt.Printf("  created:    %s\n", campaign.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Println()
	fmt.Printf("  accounts:     %d total, %d available now\n", stats.TotalAccounts, stats.Available)
	fmt.Printf("  completed:    %d\n", stats.Completed)
	fmt.Printf("  in progress:  %d\n", stats.InProgress)
	fmt.Printf("  partial:      %d\n", stats.Partial)
	fmt.Printf("  not started:  %d\n", stats.NotStarted)
	fmt.Printf("  sold with:    %d\n", stats.SoldWithCampaign)
	return nil
}

// campaignNames adapts a campaign slice to fuzzy matching over names.
type campaignNames []*models.Campaign

func (c campaignNames) Len() int            { return len(c) }
func (c campaignNames) String(i int) string { return c[i].Name }

func runCampaignsFind(cmd *cobra.Command, args []string) error {
	ctx, cancel := opCtx()
	defer cancel()

	list, err := service.Campaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	query := strings.Join(args, " ")
	matches := fuzzy.FindFrom(query, campaignNames(list))
	if len(matches) == 0 {
		fmt.Printf("no campaigns match %q\n", query)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGAME\tDROPS\tACTIVE")
	for _, m := range matches {
		c := list[m.Index]
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", c.Name, c.GameName, c.TotalDrops, c.IsActive)
	}
	return w.Flush()
}

func init() {
	campaignsListCmd.Flags().BoolVar(&campaignsAll, "all", false, "Include inactive campaigns")

	campaignsAddCmd.Flags().StringVar(&campaignGame, "game", "", "Game the campaign belongs to")
	campaignsAddCmd.Flags().IntVar(&campaignDrops, "drops", 0, "Number of drops a fully mined account collects")
	campaignsAddCmd.Flags().StringVar(&campaignStreamers, "streamers", "", "Streamer list: local path or spaces://bucket/key")
	campaignsAddCmd.Flags().BoolVar(&campaignInactive, "inactive", false, "Create the campaign paused")

	campaignsCmd.AddCommand(campaignsListCmd)
	campaignsCmd.AddCommand(campaignsAddCmd)
	campaignsCmd.AddCommand(campaignsShowCmd)
	campaignsCmd.AddCommand(campaignsFindCmd)
}
