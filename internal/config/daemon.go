package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DaemonConfig is the top-level configuration for the self-modifying
// daemon, loaded the same way the teacher loads its service Config:
// defaults via viper.SetDefault, then an optional file, then environment
// overrides via viper.AutomaticEnv.
type DaemonConfig struct {
	// DataDir is the daemon's on-disk root (".auto-dev" by default),
	// holding modules/, snapshots/, backups/, loop/, staging/.
	DataDir string `mapstructure:"data_dir"`

	// Mode is the orchestrator's initial autonomy level: observation,
	// assisted, semi_autonomous, or fully_autonomous.
	Mode             string `mapstructure:"mode"`
	MaxChangesPerDay int    `mapstructure:"max_changes_per_day"`

	Event      EventConfig      `mapstructure:"event"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Reload     ReloadConfig     `mapstructure:"reload"`
	LoopDetect LoopDetectConfig `mapstructure:"loop_detect"`
	Upgrade    UpgradeConfig    `mapstructure:"upgrade"`
	Audit      AuditConfig      `mapstructure:"audit"`
	State      StateConfig      `mapstructure:"state"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
}

// EventConfig configures the event pipeline and its filesystem watcher.
type EventConfig struct {
	WatchDirs       []string      `mapstructure:"watch_dirs"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	HealthTick      time.Duration `mapstructure:"health_tick"`
}

// DecisionConfig configures the decision engine's tiers.
type DecisionConfig struct {
	CacheCapacity       int           `mapstructure:"cache_capacity"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	DailyTokenBudget    int64         `mapstructure:"daily_token_budget"`
	BreakerThreshold    int           `mapstructure:"breaker_failure_threshold"`
	BreakerCooldown     time.Duration `mapstructure:"breaker_cooldown"`
}

// SandboxConfig configures per-module sandbox limits.
type SandboxConfig struct {
	CPUMillis     int64 `mapstructure:"cpu_millis"`
	MemoryBytes   int64 `mapstructure:"memory_bytes"`
	MaxGoroutines int   `mapstructure:"max_goroutines"`
}

// ReloadConfig configures the hot-reload coordinator's policy.
type ReloadConfig struct {
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout"`
	SnapshotOnLoad bool          `mapstructure:"snapshot_on_load"`
}

// LoopDetectConfig configures the loop detector's thresholds.
type LoopDetectConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	MaxPerMinute  int           `mapstructure:"max_per_minute"`
	CriticalPaths []string      `mapstructure:"critical_paths"`
}

// UpgradeConfig configures the self-upgrade state machine.
type UpgradeConfig struct {
	BinaryPath          string        `mapstructure:"binary_path"`
	KeepVersions        int           `mapstructure:"keep_versions"`
	VerificationTimeout time.Duration `mapstructure:"verification_timeout"`
	BuildCommand        []string      `mapstructure:"build_command"`
	DryRun              bool          `mapstructure:"dry_run"`
}

// AuditConfig selects the audit trail's backing store.
type AuditConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "sqlite", or "postgres"
	DSN     string `mapstructure:"dsn"`
}

// StateConfig selects the module state manager's backing store.
type StateConfig struct {
	Backend      string `mapstructure:"backend"`
	DSN          string `mapstructure:"dsn"`
	RingCapacity int    `mapstructure:"ring_capacity"`
	FullEvery    int    `mapstructure:"full_every"`
}

// AdminConfig configures the loopback admin HTTP surface.
type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the daemon's logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadDaemonConfig loads the daemon's configuration from defaults, an
// optional YAML file at configPath, and AUTODEVD_-prefixed environment
// overrides.
func LoadDaemonConfig(configPath string) (*DaemonConfig, error) {
	v := viper.New()
	setDaemonDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("AUTODEVD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	var cfg DaemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDaemonDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".auto-dev")
	v.SetDefault("mode", "observation")
	v.SetDefault("max_changes_per_day", 10)

	v.SetDefault("event.dedup_window", "5m")
	v.SetDefault("event.rate_limit_per_min", 60)
	v.SetDefault("event.rate_limit_window", "1m")
	v.SetDefault("event.health_tick", "30s")

	v.SetDefault("decision.cache_capacity", 1000)
	v.SetDefault("decision.cache_ttl", "1h")
	v.SetDefault("decision.daily_token_budget", 1_000_000)
	v.SetDefault("decision.breaker_failure_threshold", 5)
	v.SetDefault("decision.breaker_cooldown", "5m")

	v.SetDefault("sandbox.cpu_millis", 500)
	v.SetDefault("sandbox.memory_bytes", 256*1024*1024)
	v.SetDefault("sandbox.max_goroutines", 64)

	v.SetDefault("reload.drain_timeout", "10s")
	v.SetDefault("reload.verify_timeout", "5s")
	v.SetDefault("reload.snapshot_on_load", true)

	v.SetDefault("loop_detect.cooldown", "1m")
	v.SetDefault("loop_detect.max_per_minute", 5)

	v.SetDefault("upgrade.keep_versions", 3)
	v.SetDefault("upgrade.verification_timeout", "30s")

	v.SetDefault("audit.backend", "sqlite")
	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.ring_capacity", 20)
	v.SetDefault("state.full_every", 5)

	v.SetDefault("admin.addr", "127.0.0.1:9095")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}
