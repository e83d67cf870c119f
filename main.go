package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minefleet/fleet"
	"minefleet/fleet/activation"
	"minefleet/fleet/callback"
	"minefleet/fleet/database"
	"minefleet/fleet/database/repositories"
	"minefleet/fleet/leasing"
	"minefleet/fleet/logger"
	"minefleet/fleet/notify"
	"minefleet/fleet/supervisor"
	"minefleet/fleet/targets"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Default logger until the config names a level and format.
	slog.SetDefault(slog.New(logger.NewHandler()))

	slog.Info("Starting minefleet daemon",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	skipSweep := flag.Bool("skip-sweep", false, "skip the startup orphan sweep")
	flag.Parse()

	cfg, err := fleet.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.AddSource)
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Convert fleet.DBConfig to database.DBConfig
	dbConfig := database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	}

	db, err := database.New(ctx, dbConfig)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema ready")

	accountRepo := repositories.NewAccountRepository(db.BunDB())
	leaseRepo := repositories.NewLeaseRepository(db.BunDB())
	campaignRepo := repositories.NewCampaignRepository(db.BunDB())

	notifier := buildNotifier(cfg.Notify)
	service := leasing.NewService(accountRepo, leaseRepo, campaignRepo, notifier)

	// Leases orphaned by a previous daemon would starve this run's claims,
	// so sweep before any worker asks for an account.
	reclaimer := leasing.NewReclaimer(service, leaseRepo, notifier, cfg.Reclaimer.Interval(), cfg.Reclaimer.MaxAge())
	if !*skipSweep {
		if reclaimed, err := reclaimer.Sweep(ctx, cfg.Reclaimer.MaxAge()); err != nil {
			slog.Error("Startup sweep failed", slog.Any("error", err))
		} else if reclaimed > 0 {
			slog.Info("Startup sweep reclaimed leases", slog.Int("count", reclaimed))
		}
	}
	reclaimer.Start()
	defer reclaimer.Shutdown()

	callbackSrv := callback.NewServer(cfg.Callback.Addr, service)
	if err := callbackSrv.Start(); err != nil {
		slog.Error("Failed to start callback server", slog.Any("error", err))
		os.Exit(-1)
	}

	materializer := targets.NewMaterializer(cfg.Spaces.Key, cfg.Spaces.Secret, cfg.Spaces.Region, cfg.Spaces.Bucket)

	sup := supervisor.New(supervisor.Config{
		Campaign:          cfg.Fleet.Campaign,
		Workers:           cfg.Fleet.Workers,
		IncludePartial:    cfg.Fleet.IncludePartial,
		MinerBinary:       cfg.Fleet.MinerBinary,
		MinerArgs:         cfg.Fleet.MinerArgs,
		WorkspaceDir:      cfg.Fleet.WorkspaceDir,
		CallbackAddr:      cfg.Callback.Addr,
		AnalyticsBasePort: cfg.Fleet.AnalyticsBasePort,
		StartStagger:      cfg.Fleet.StaggerDuration(),
		StartGrace:        cfg.Fleet.GraceDuration(),
		MonitorInterval:   cfg.Fleet.MonitorDuration(),
		MaxRestarts:       cfg.Fleet.MaxRestarts,
		RestartDelay:      cfg.Fleet.RestartDuration(),
		StopTimeout:       cfg.Fleet.StopDuration(),
	}, service, materializer, notifier, nil)

	if err := sup.StartAll(ctx); err != nil {
		slog.Error("Failed to start workers", slog.Any("error", err))
		os.Exit(-1)
	}

	var watcher *activation.Watcher
	if cfg.Activation.Automated {
		activator := activation.NewActivator(cfg.Activation.TimeoutDur())
		watcher = activation.NewWatcher(cfg.Fleet.WorkspaceDir, service, activator)
		if err := watcher.Start(); err != nil {
			slog.Error("Failed to start activation watcher", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	slog.Info("Fleet is running. Press CTRL-C to exit.",
		slog.String("campaign", cfg.Fleet.Campaign),
		slog.Int("workers", cfg.Fleet.Workers))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		watcher.Stop()
	}
	sup.StopAll(shutdownCtx)
	if err := callbackSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Callback server shutdown failed", slog.Any("error", err))
	}
}

// buildNotifier wires the configured sinks. Both webhook styles can run at
// once; with neither configured events are dropped silently.
func buildNotifier(cfg fleet.NotifyConfig) notify.Notifier {
	var sinks []notify.Notifier
	if cfg.DiscordWebhook != "" {
		discord, err := notify.NewDiscordNotifier(cfg.DiscordWebhook, cfg.Username)
		if err != nil {
			slog.Error("Failed to configure Discord notifier", slog.Any("error", err))
		} else {
			sinks = append(sinks, discord)
		}
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.WebhookURL))
	}
	switch len(sinks) {
	case 0:
		return notify.Nop{}
	case 1:
		return sinks[0]
	default:
		return notify.Multi(sinks...)
	}
}
