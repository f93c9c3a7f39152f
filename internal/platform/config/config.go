package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	strs "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/strings"
)

// Config is loaded once at process start; hot reload is not supported.
type Config struct {
	Server    Server
	Log       LogConfig
	Scheduler SchedulerConfig
	Timeout   TimeoutConfig   `yaml:"timeout"`
	Trust     TrustConfig     `yaml:"trust"`
	Emergency EmergencyConfig `yaml:"emergency"`
	Dispute   DisputeConfig   `yaml:"dispute"`
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
}

// Server captures the ops HTTP listener (health and metrics only).
type Server struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

type SchedulerConfig struct {
	Interval time.Duration
}

// CategoryConfig is one ordered timeout category. When is a predicate in the
// form "<field> <op> <literal>", e.g. "value > 10000".
type CategoryConfig struct {
	Name     string        `yaml:"name"`
	When     string        `yaml:"when"`
	Duration time.Duration `yaml:"duration"`
}

type LeadTimeConfig struct {
	Name string        `yaml:"name"`
	Lead time.Duration `yaml:"lead"`
}

type TimeoutConfig struct {
	Default    time.Duration    `yaml:"default"`
	Categories []CategoryConfig `yaml:"categories"`
	Reminders  []LeadTimeConfig `yaml:"reminders"`
	// TrustExtension is added to the deadline when the party owning the
	// current step holds a tier with extended timeouts.
	TrustExtension time.Duration `yaml:"trust_extension"`
}

type TierConfig struct {
	Name               string  `yaml:"name"`
	MinScore           float64 `yaml:"min_score"`
	AutoApproveCeiling float64 `yaml:"auto_approve_ceiling"`
	BatchOperations    bool    `yaml:"batch_operations"`
	ExtendedTimeouts   bool    `yaml:"extended_timeouts"`
	InstantApproval    bool    `yaml:"instant_approval"`
}

type TrustConfig struct {
	Initial float64            `yaml:"initial"`
	Max     float64            `yaml:"max"`
	Deltas  map[string]float64 `yaml:"deltas"`
	Tiers   []TierConfig       `yaml:"tiers"`
}

type EmergencyConfig struct {
	MaxValue               float64  `yaml:"max_value"`
	RiskScoreThreshold     float64  `yaml:"risk_score_threshold"`
	BlacklistCheck         bool     `yaml:"blacklist_check"`
	ResumeRequiresApproval bool     `yaml:"resume_requires_approval"`
	ApprovedRoles          []string `yaml:"approved_roles"`
	PartyLevelHalt         bool     `yaml:"party_level_halt"`
}

type DisputeConfig struct {
	GracePeriod   time.Duration `yaml:"grace_period"`
	ReviewerRoles []string      `yaml:"reviewer_roles"`
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is used by the shared halted-set index. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is used by the ledger and notification producers. No brokers
// disables both and the log-backed collaborators are used instead.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	LedgerTopic       string
	NotificationTopic string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{Addr: ":9090"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{
			Interval: 60 * time.Second,
		},
		Timeout: TimeoutConfig{
			Default: 72 * time.Hour,
			Categories: []CategoryConfig{
				{Name: "high_value", When: "value > 10000", Duration: 24 * time.Hour},
			},
			Reminders: []LeadTimeConfig{
				{Name: "first", Lead: 24 * time.Hour},
				{Name: "second", Lead: 12 * time.Hour},
				{Name: "final", Lead: 2 * time.Hour},
			},
			TrustExtension: 24 * time.Hour,
		},
		Trust: TrustConfig{
			Initial: 50,
			Max:     150,
			Deltas: map[string]float64{
				"successful_transaction": 1,
				"on_time_confirmation":   0.5,
				"dispute_won":            2,
				"timeout_caused":         -2,
				"false_claim":            -10,
			},
			Tiers: []TierConfig{
				{Name: "standard", MinScore: 50, AutoApproveCeiling: 100},
				{Name: "trusted", MinScore: 100, AutoApproveCeiling: 10000, BatchOperations: true, ExtendedTimeouts: true},
				{Name: "premium", MinScore: 150, AutoApproveCeiling: 50000, BatchOperations: true, ExtendedTimeouts: true, InstantApproval: true},
			},
		},
		Emergency: EmergencyConfig{
			MaxValue:               1_000_000,
			RiskScoreThreshold:     0.8,
			BlacklistCheck:         true,
			ResumeRequiresApproval: true,
			ApprovedRoles:          []string{"brand_owner", "security_team"},
		},
		Dispute: DisputeConfig{
			GracePeriod:   7 * 24 * time.Hour,
			ReviewerRoles: []string{"arbitrator", "brand_owner"},
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			ClientID:          "twocheck-coordinator",
			LedgerTopic:       "ledger.records",
			NotificationTopic: "twocheck.notifications",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML policy file
// named by POLICY_FILE, then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("POLICY_FILE"); path != "" {
		if err := LoadPolicyFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("OPS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if err := envDuration("SCHEDULER_INTERVAL", &cfg.Scheduler.Interval); err != nil {
		return err
	}
	if err := envDuration("TIMEOUT_DEFAULT", &cfg.Timeout.Default); err != nil {
		return err
	}
	if err := envDuration("DISPUTE_GRACE_PERIOD", &cfg.Dispute.GracePeriod); err != nil {
		return err
	}
	if err := envFloat("EMERGENCY_MAX_VALUE", &cfg.Emergency.MaxValue); err != nil {
		return err
	}
	if err := envFloat("EMERGENCY_RISK_THRESHOLD", &cfg.Emergency.RiskScoreThreshold); err != nil {
		return err
	}
	if err := envBool("EMERGENCY_BLACKLIST_CHECK", &cfg.Emergency.BlacklistCheck); err != nil {
		return err
	}
	if err := envBool("EMERGENCY_RESUME_APPROVAL", &cfg.Emergency.ResumeRequiresApproval); err != nil {
		return err
	}
	if err := envBool("EMERGENCY_PARTY_HALT", &cfg.Emergency.PartyLevelHalt); err != nil {
		return err
	}
	if v := os.Getenv("EMERGENCY_APPROVED_ROLES"); v != "" {
		cfg.Emergency.ApprovedRoles = strs.DedupeAndTrimLower(strings.Split(v, ","))
	}
	if v := os.Getenv("DISPUTE_REVIEWER_ROLES"); v != "" {
		cfg.Dispute.ReviewerRoles = strs.DedupeAndTrimLower(strings.Split(v, ","))
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_LEDGER_TOPIC"); v != "" {
		cfg.Kafka.LedgerTopic = v
	}
	if v := os.Getenv("KAFKA_NOTIFICATION_TOPIC"); v != "" {
		cfg.Kafka.NotificationTopic = v
	}
	return nil
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.Timeout.Default <= 0 {
		return fmt.Errorf("timeout default must be positive")
	}
	for _, cat := range c.Timeout.Categories {
		if cat.Name == "" {
			return fmt.Errorf("timeout category requires a name")
		}
		if cat.Duration <= 0 {
			return fmt.Errorf("timeout category %q: duration must be positive", cat.Name)
		}
	}
	for _, r := range c.Timeout.Reminders {
		if r.Lead <= 0 {
			return fmt.Errorf("reminder %q: lead time must be positive", r.Name)
		}
	}
	if c.Trust.Max <= 0 || c.Trust.Initial < 0 || c.Trust.Initial > c.Trust.Max {
		return fmt.Errorf("trust initial score must lie within [0, max]")
	}
	if c.Emergency.RiskScoreThreshold < 0 {
		return fmt.Errorf("emergency risk score threshold must not be negative")
	}
	if c.Dispute.GracePeriod <= 0 {
		return fmt.Errorf("dispute grace period must be positive")
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	return strs.DedupeAndTrim(strings.Split(v, ","))
}

func parseDurationInto(v string, dst *time.Duration) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
