// Package config loads the service configuration from an optional .env file
// and FACEGATE_* environment variables, on top of compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	"facegate/internal/cascade"
	"facegate/internal/risk"
	"facegate/internal/routing"
	"facegate/pkg/platform/middleware/admin"
)

const envPrefix = "FACEGATE"

type Server struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type Auth struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key" validate:"required,min=32"`
	Issuer        string `mapstructure:"issuer" validate:"required"`
}

// Postgres is optional; without a URL the stores run in memory.
type Postgres struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxPoolConns int32  `mapstructure:"max_pool_conns" validate:"gte=1"`
}

// Redis is optional; without a URL sessions are kept in memory.
type Redis struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=1"`
	MinIdleConns int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	SessionTTL   time.Duration `mapstructure:"session_ttl" validate:"gt=0"`

	// FingerprintRetention bounds how far back duplicate fingerprint scans
	// reach once session records have expired.
	FingerprintRetention time.Duration `mapstructure:"fingerprint_retention" validate:"gtefield=SessionTTL"`
}

// Kafka is optional; without brokers audit events are not replicated.
type Kafka struct {
	Brokers           []string `mapstructure:"brokers"`
	AuditTopic        string   `mapstructure:"audit_topic" validate:"required"`
	Partitions        int32    `mapstructure:"partitions" validate:"gte=1"`
	ReplicationFactor int16    `mapstructure:"replication_factor" validate:"gte=1"`
	BufferSize        int      `mapstructure:"buffer_size" validate:"gte=1"`
}

// Review lists the human reviewers as "name:token" entries, e.g.
// FACEGATE_REVIEW_TOKENS=officer-7:<token>,auditor:<token>. Without any,
// alert resolution and integrity checks are closed.
type Review struct {
	Tokens []string `mapstructure:"tokens"`
}

type Audit struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	// VerifyOnStartup walks the whole chain before serving traffic.
	VerifyOnStartup bool `mapstructure:"verify_on_startup"`
}

type Perception struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Backup configures the remote comparison provider. Without a URL borderline
// matches fail closed.
type Backup struct {
	URL              string        `mapstructure:"url"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	Cooldown         time.Duration `mapstructure:"cooldown" validate:"gte=0"`
}

type Enrollment struct {
	MaxSamples int `mapstructure:"max_samples" validate:"gte=1,lte=50"`
}

// RateLimit throttles authenticated requests per terminal.
type RateLimit struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"gte=1"`
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
}

type Config struct {
	Server     Server     `mapstructure:"server"`
	Log        Log        `mapstructure:"log"`
	Auth       Auth       `mapstructure:"auth"`
	Postgres   Postgres   `mapstructure:"postgres"`
	Redis      Redis      `mapstructure:"redis"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Audit      Audit      `mapstructure:"audit"`
	Review     Review     `mapstructure:"review"`
	Perception Perception `mapstructure:"perception"`
	Backup     Backup     `mapstructure:"backup"`
	Enrollment Enrollment `mapstructure:"enrollment"`
	RateLimit  RateLimit  `mapstructure:"ratelimit"`

	Embedding embedding.Config `mapstructure:"embedding"`
	Liveness  liveness.Config  `mapstructure:"liveness"`
	AntiSpoof antispoof.Config `mapstructure:"antispoof"`
	Cascade   cascade.Config   `mapstructure:"cascade"`
	Risk      risk.Config      `mapstructure:"risk"`
	Routing   routing.Config   `mapstructure:"routing"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      8 << 20,
		},
		Log: Log{Level: "info", Format: "json"},
		Auth: Auth{
			JWTSigningKey: "dev-terminal-signing-key-change-in-production",
			Issuer:        "facegate",
		},
		Postgres: Postgres{MaxOpenConns: 20, MaxPoolConns: 10},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SessionTTL:   24 * time.Hour,

			FingerprintRetention: 90 * 24 * time.Hour,
		},
		Kafka: Kafka{
			AuditTopic:        "facegate.audit.events",
			Partitions:        1,
			ReplicationFactor: 1,
			BufferSize:        1024,
		},
		Audit:      Audit{Secret: "dev-audit-secret-change-me", VerifyOnStartup: true},
		Perception: Perception{Timeout: 5 * time.Second},
		Backup:     Backup{FailureThreshold: 5, Cooldown: 30 * time.Second},
		Enrollment: Enrollment{MaxSamples: 10},
		RateLimit:  RateLimit{Enabled: true, Limit: 120, Window: time.Minute},
		Embedding:  embedding.DefaultConfig(),
		Liveness:   liveness.DefaultConfig(),
		AntiSpoof:  antispoof.DefaultConfig(),
		Cascade:    cascade.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Routing:    routing.DefaultConfig(),
	}
}

// envKeys are the settings that may be overridden from the environment,
// e.g. cascade.backup_timeout is FACEGATE_CASCADE_BACKUP_TIMEOUT.
var envKeys = []string{
	"server.addr", "server.read_header_timeout", "server.request_timeout", "server.shutdown_timeout", "server.max_body_bytes",
	"log.level", "log.format",
	"auth.jwt_signing_key", "auth.issuer",
	"postgres.url", "postgres.max_open_conns", "postgres.max_pool_conns",
	"redis.url", "redis.pool_size", "redis.min_idle_conns", "redis.dial_timeout", "redis.read_timeout", "redis.write_timeout", "redis.session_ttl", "redis.fingerprint_retention",
	"kafka.brokers", "kafka.audit_topic", "kafka.partitions", "kafka.replication_factor", "kafka.buffer_size",
	"audit.secret", "audit.verify_on_startup",
	"review.tokens",
	"perception.url", "perception.timeout",
	"backup.url", "backup.failure_threshold", "backup.cooldown",
	"enrollment.max_samples",
	"ratelimit.enabled", "ratelimit.limit", "ratelimit.window",
	"embedding.dimension", "embedding.high", "embedding.medium", "embedding.low", "embedding.shard_size",
	"liveness.version", "liveness.live_threshold", "liveness.check_pass", "liveness.min_landmarks",
	"antispoof.version", "antispoof.max_spoof_score", "antispoof.check_pass",
	"cascade.backup_timeout", "cascade.backup_match_threshold",
	"cascade.weights.liveness", "cascade.weights.anti_spoof", "cascade.weights.embedding", "cascade.weights.backup",
	"risk.alert_threshold", "risk.block_threshold",
	"routing.high_risk_threshold",
}

// Load reads .env when present, applies FACEGATE_* overrides and validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct tag rules and then each component's own checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	checks := []struct {
		name     string
		validate func() error
	}{
		{"embedding", c.Embedding.Validate},
		{"liveness", c.Liveness.Validate},
		{"antispoof", c.AntiSpoof.Validate},
		{"cascade", c.Cascade.Validate},
		{"risk", c.Risk.Validate},
		{"routing", c.Routing.Validate},
		{"review", func() error {
			_, err := admin.ParseReviewers(c.Review.Tokens)
			return err
		}},
	}
	for _, check := range checks {
		if err := check.validate(); err != nil {
			return fmt.Errorf("invalid %s config: %w", check.name, err)
		}
	}
	return nil
}
