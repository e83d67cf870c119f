package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"minefleet/fleet"
	"minefleet/fleet/database"
	"minefleet/fleet/database/repositories"
	"minefleet/fleet/leasing"
	"minefleet/fleet/logger"
)

var (
	// Global flags
	configPath string

	// Wired by rootCmd's PersistentPreRunE, shared by every subcommand.
	cfg       *fleet.Config
	db        *database.DB
	accounts  repositories.AccountRepository
	leases    repositories.LeaseRepository
	campaigns repositories.CampaignRepository
	service   *leasing.Service
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "campaignctl",
	Short: "Operator tooling for the minefleet account pool",
	Long: `campaignctl manages the shared pool of mining accounts and the drop
campaigns they are leased against.

It talks to the same PostgreSQL database as the fleet daemon, so every
subcommand is safe to run while miners are active: claims stay atomic and
nothing here bypasses the leasing rules.

Examples:
  campaignctl campaigns list
  campaignctl campaigns add rust-drops --game Rust --drops 8 --streamers lists/rust.txt
  campaignctl accounts retire miner17 --status sold --reason "sold with rust-drops"
  campaignctl import file accounts.txt
  campaignctl sweep --max-age 12h`,
	SilenceUsage:      true,
	PersistentPreRunE: setupEnvironment,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

// setupEnvironment loads config, logging and the database connection the
// subcommands share. Runs once per invocation before any RunE.
func setupEnvironment(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = fleet.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.AddSource)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err = database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	accounts = repositories.NewAccountRepository(db.BunDB())
	leases = repositories.NewLeaseRepository(db.BunDB())
	campaigns = repositories.NewCampaignRepository(db.BunDB())
	service = leasing.NewService(accounts, leases, campaigns, nil)
	return nil
}

// opCtx bounds a single subcommand's database work. Imports and sweeps
// override this with their own longer deadline.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "Path to the TOML config file")

	rootCmd.AddCommand(campaignsCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
