package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"minefleet/fleet/migration"
)

var (
	importBatch     int
	importWorkers   int
	importMongoURI  string
	importMongoDB   string
	importMongoColl string
)

// importCmd is the parent command for bringing accounts into the pool
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import accounts from legacy sources",
	Long: `Imports accounts into the pool. Re-running an import is safe: accounts
are matched by username, existing rows get refreshed credentials and new
rows are created.

Examples:
  campaignctl import file accounts.txt
  campaignctl import mongo --db dropminer`,
}

var importFileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Import username:password lines from a text file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportFile,
}

var importMongoCmd = &cobra.Command{
	Use:   "mongo",
	Short: "Import the accounts collection from a legacy MongoDB deployment",
	RunE:  runImportMongo,
}

// importCtx allows for large pools; file parsing is fast but the upsert
// fan-out against Postgres is not.
func importCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Minute)
}

func newMigrator() *migration.Migrator {
	m := migration.NewMigrator(accounts)
	if importBatch > 0 {
		m.SetBatchSize(importBatch)
	}
	if importWorkers > 0 {
		m.SetWorkers(importWorkers)
	}
	return m
}

func printImportStats(stats migration.Stats) {
	fmt.Printf("read:     %d\n", stats.Read)
	fmt.Printf("created:  %d\n", stats.Created)
	fmt.Printf("updated:  %d\n", stats.Updated)
	fmt.Printf("skipped:  %d\n", stats.Skipped)
	fmt.Printf("failed:   %d\n", stats.Failed)
	fmt.Printf("took:     %s\n", stats.Duration)
}

func runImportFile(cmd *cobra.Command, args []string) error {
	ctx, cancel := importCtx()
	defer cancel()

	stats, err := newMigrator().ImportFromFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	printImportStats(stats)
	return nil
}

func runImportMongo(cmd *cobra.Command, args []string) error {
	ctx, cancel := importCtx()
	defer cancel()

	uri := importMongoURI
	if uri == "" {
		uri = cfg.Mongo.URI
	}
	dbName := importMongoDB
	if dbName == "" {
		dbName = cfg.Mongo.Database
	}
	if uri == "" || dbName == "" {
		return fmt.Errorf("mongo source not configured, set --uri and --db or the [mongo] config section")
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connectCancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	m := newMigrator()
	m.UseMongo(client, dbName)
	if coll := importMongoColl; coll != "" {
		m.SetMongoCollectionName(coll)
	} else if cfg.Mongo.Collection != "" {
		m.SetMongoCollectionName(cfg.Mongo.Collection)
	}

	stats, err := m.ImportFromMongo(ctx)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	printImportStats(stats)
	return nil
}

func init() {
	importCmd.PersistentFlags().IntVar(&importBatch, "batch", 0, "Accounts per upsert batch (default 500)")
	importCmd.PersistentFlags().IntVar(&importWorkers, "workers", 0, "Concurrent upsert batches (default 4)")

	importMongoCmd.Flags().StringVar(&importMongoURI, "uri", "", "Mongo connection URI (overrides config)")
	importMongoCmd.Flags().StringVar(&importMongoDB, "db", "", "Mongo database name (overrides config)")
	importMongoCmd.Flags().StringVar(&importMongoColl, "collection", "", "Mongo collection name (default accounts)")

	importCmd.AddCommand(importFileCmd)
	importCmd.AddCommand(importMongoCmd)
}
