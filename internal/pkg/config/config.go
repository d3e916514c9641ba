package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Canon      CanonConfig      `yaml:"canonicalization"`
	Merge      MergeConfig      `yaml:"merge"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	History    HistoryConfig    `yaml:"history"`
	Redis      RedisConfig      `yaml:"redis"`
	Ops        OpsConfig        `yaml:"ops"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`     // debug/info/warn/error
	JSONFile string `yaml:"json_file"` // optional: duplicate logs as JSON lines to this file
}

// FeedsConfig lists the feed documents the engine watches. One adapter per
// source writes its document; the engine only ever reads them.
type FeedsConfig struct {
	Dir     string       `yaml:"dir"` // directory holding <source_id>.json documents
	Sources []FeedSource `yaml:"sources"`
}

type FeedSource struct {
	ID      string   `yaml:"id"`
	Path    string   `yaml:"path"`    // overrides Dir/<id>.json when set
	Command []string `yaml:"command"` // adapter process argv; empty = externally managed
}

type CanonConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // min score to attach a raw name as alias (default 0.8)
	PersistAliases      bool    `yaml:"persist_aliases"`      // write learned aliases through to Redis
}

type MergeConfig struct {
	StartTimeTolerance time.Duration `yaml:"start_time_tolerance"` // bucket size for canonical keys
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"` // min interval between two aggregation passes
}

type LifecycleConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	FinishedGrace  time.Duration `yaml:"finished_grace"`   // keep past-start records this long before retiring
	LiveStaleAfter time.Duration `yaml:"live_stale_after"` // live record with no merge for this long is abandoned
}

type SupervisorConfig struct {
	CheckInterval      time.Duration `yaml:"check_interval"`
	FreshnessThreshold time.Duration `yaml:"freshness_threshold"` // no feed change for this long => Degraded
	FailureThreshold   time.Duration `yaml:"failure_threshold"`   // gross staleness => Failed even if process runs
	RestartTimeout     time.Duration `yaml:"restart_timeout"`     // restart must yield a fresh feed within this
	MaxRestarts        int           `yaml:"max_restarts"`        // restarts allowed inside RestartWindow
	RestartWindow      time.Duration `yaml:"restart_window"`
	StopGrace          time.Duration `yaml:"stop_grace"` // SIGTERM to SIGKILL on shutdown
}

type AlertsConfig struct {
	Cooldown         time.Duration `yaml:"cooldown"` // suppression window per alert key
	TelegramBotToken string        `yaml:"telegram_bot_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
}

type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"` // empty = in-memory history only
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty = no alias persistence
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OpsConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills conservative values for every tunable left unset.
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Canon.SimilarityThreshold == 0 {
		c.Canon.SimilarityThreshold = 0.8
	}
	if c.Merge.StartTimeTolerance == 0 {
		c.Merge.StartTimeTolerance = 30 * time.Minute
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = 5 * time.Second
	}
	if c.Scheduler.Debounce == 0 {
		c.Scheduler.Debounce = 10 * time.Second
	}
	if c.Lifecycle.SweepInterval == 0 {
		c.Lifecycle.SweepInterval = 3 * time.Minute
	}
	if c.Lifecycle.FinishedGrace == 0 {
		c.Lifecycle.FinishedGrace = 4 * time.Hour
	}
	if c.Lifecycle.LiveStaleAfter == 0 {
		c.Lifecycle.LiveStaleAfter = 30 * time.Minute
	}
	if c.Supervisor.CheckInterval == 0 {
		c.Supervisor.CheckInterval = 30 * time.Second
	}
	if c.Supervisor.FreshnessThreshold == 0 {
		c.Supervisor.FreshnessThreshold = 2 * time.Minute
	}
	if c.Supervisor.FailureThreshold == 0 {
		c.Supervisor.FailureThreshold = 10 * time.Minute
	}
	if c.Supervisor.RestartTimeout == 0 {
		c.Supervisor.RestartTimeout = time.Minute
	}
	if c.Supervisor.MaxRestarts == 0 {
		c.Supervisor.MaxRestarts = 3
	}
	if c.Supervisor.RestartWindow == 0 {
		c.Supervisor.RestartWindow = 10 * time.Minute
	}
	if c.Supervisor.StopGrace == 0 {
		c.Supervisor.StopGrace = 10 * time.Second
	}
	if c.Alerts.Cooldown == 0 {
		c.Alerts.Cooldown = time.Hour
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 8080
	}
	if c.Ops.ReadHeaderTimeout == 0 {
		c.Ops.ReadHeaderTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Feeds.Dir == "" && len(c.Feeds.Sources) == 0 {
		return fmt.Errorf("feeds: either dir or sources must be configured")
	}
	seen := make(map[string]bool, len(c.Feeds.Sources))
	for _, s := range c.Feeds.Sources {
		if s.ID == "" {
			return fmt.Errorf("feeds: source with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("feeds: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if c.Canon.SimilarityThreshold < 0 || c.Canon.SimilarityThreshold > 1 {
		return fmt.Errorf("canonicalization: similarity_threshold must be in [0,1], got %v", c.Canon.SimilarityThreshold)
	}
	if c.Scheduler.Debounce < 0 {
		return fmt.Errorf("scheduler: debounce must not be negative")
	}
	return nil
}

// FeedPath returns the document path for a source, honoring per-source overrides.
func (c *Config) FeedPath(s FeedSource) string {
	if s.Path != "" {
		return s.Path
	}
	return c.Feeds.Dir + "/" + s.ID + ".json"
}
