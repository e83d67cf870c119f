package fleet

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}

	if err = applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log        LogConfig        `toml:"log"`
	DB         DBConfig         `toml:"db"`
	Fleet      FleetConfig      `toml:"fleet"`
	Reclaimer  ReclaimerConfig  `toml:"reclaimer"`
	Callback   CallbackConfig   `toml:"callback"`
	Notify     NotifyConfig     `toml:"notify"`
	Activation ActivationConfig `toml:"activation"`
	Spaces     SpacesConfig     `toml:"spaces"`
	Mongo      MongoConfig      `toml:"mongo"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// FleetConfig drives the supervisor: which campaign to mine, how many
// workers to run, and the restart policy. Interval fields are seconds.
type FleetConfig struct {
	Campaign          string   `toml:"campaign"`
	Workers           int      `toml:"workers"`
	IncludePartial    bool     `toml:"include_partial"`
	MinerBinary       string   `toml:"miner_binary"`
	MinerArgs         []string `toml:"miner_args"`
	WorkspaceDir      string   `toml:"workspace_dir"`
	AnalyticsBasePort int      `toml:"analytics_base_port"`
	StartStagger      int      `toml:"start_stagger"`
	StartGrace        int      `toml:"start_grace"`
	MonitorInterval   int      `toml:"monitor_interval"`
	MaxRestarts       int      `toml:"max_restarts"`
	RestartDelay      int      `toml:"restart_delay"`
	StopTimeout       int      `toml:"stop_timeout"`
}

type ReclaimerConfig struct {
	SweepInterval int `toml:"sweep_interval"`
	MaxAgeHours   int `toml:"max_age_hours"`
}

type CallbackConfig struct {
	Addr string `toml:"addr"`
}

type NotifyConfig struct {
	DiscordWebhook string `toml:"discord_webhook"`
	WebhookURL     string `toml:"webhook_url"`
	Username       string `toml:"username"`
}

type ActivationConfig struct {
	Automated bool `toml:"automated"`
	Timeout   int  `toml:"timeout"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
}

type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// envOverrides keeps secrets out of config.toml. Any value set in the
// environment wins over the file.
type envOverrides struct {
	DBPassword     string `env:"MINEFLEET_DB_PASSWORD"`
	DiscordWebhook string `env:"MINEFLEET_DISCORD_WEBHOOK"`
	WebhookURL     string `env:"MINEFLEET_WEBHOOK_URL"`
	SpacesKey      string `env:"MINEFLEET_SPACES_KEY"`
	SpacesSecret   string `env:"MINEFLEET_SPACES_SECRET"`
	MongoURI       string `env:"MINEFLEET_MONGO_URI"`
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}
	if o.DBPassword != "" {
		cfg.DB.Password = o.DBPassword
	}
	if o.DiscordWebhook != "" {
		cfg.Notify.DiscordWebhook = o.DiscordWebhook
	}
	if o.WebhookURL != "" {
		cfg.Notify.WebhookURL = o.WebhookURL
	}
	if o.SpacesKey != "" {
		cfg.Spaces.Key = o.SpacesKey
	}
	if o.SpacesSecret != "" {
		cfg.Spaces.Secret = o.SpacesSecret
	}
	if o.MongoURI != "" {
		cfg.Mongo.URI = o.MongoURI
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Fleet.Workers <= 0 {
		c.Fleet.Workers = 1
	}
	if c.Fleet.WorkspaceDir == "" {
		c.Fleet.WorkspaceDir = "workspaces"
	}
	if c.Fleet.AnalyticsBasePort == 0 {
		c.Fleet.AnalyticsBasePort = 5000
	}
	if c.Fleet.StartStagger <= 0 {
		c.Fleet.StartStagger = 10
	}
	if c.Fleet.StartGrace <= 0 {
		c.Fleet.StartGrace = 2
	}
	if c.Fleet.MonitorInterval <= 0 {
		c.Fleet.MonitorInterval = 30
	}
	if c.Fleet.MaxRestarts <= 0 {
		c.Fleet.MaxRestarts = 3
	}
	if c.Fleet.RestartDelay <= 0 {
		c.Fleet.RestartDelay = 60
	}
	if c.Fleet.StopTimeout <= 0 {
		c.Fleet.StopTimeout = 10
	}
	if c.Reclaimer.SweepInterval <= 0 {
		c.Reclaimer.SweepInterval = 3600
	}
	if c.Reclaimer.MaxAgeHours <= 0 {
		c.Reclaimer.MaxAgeHours = 24
	}
	if c.Callback.Addr == "" {
		c.Callback.Addr = "127.0.0.1:8420"
	}
	if c.Notify.Username == "" {
		c.Notify.Username = "minefleet"
	}
	if c.Activation.Timeout <= 0 {
		c.Activation.Timeout = 120
	}
	if c.DB.PoolSize <= 0 {
		c.DB.PoolSize = 10
	}
}

func (c *FleetConfig) StaggerDuration() time.Duration {
	return time.Duration(c.StartStagger) * time.Second
}

func (c *FleetConfig) GraceDuration() time.Duration {
	return time.Duration(c.StartGrace) * time.Second
}

func (c *FleetConfig) MonitorDuration() time.Duration {
	return time.Duration(c.MonitorInterval) * time.Second
}

func (c *FleetConfig) RestartDuration() time.Duration {
	return time.Duration(c.RestartDelay) * time.Second
}

func (c *FleetConfig) StopDuration() time.Duration {
	return time.Duration(c.StopTimeout) * time.Second
}

func (c *ReclaimerConfig) Interval() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

func (c *ReclaimerConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

func (c *ActivationConfig) TimeoutDur() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
