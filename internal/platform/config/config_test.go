package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Cascade.BackupTimeout)
	assert.Equal(t, 90.0, cfg.Cascade.BackupMatchThreshold)
	assert.Equal(t, 0.6, cfg.Risk.AlertThreshold)
	assert.Empty(t, cfg.Postgres.URL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FACEGATE_SERVER_ADDR", ":9090")
	t.Setenv("FACEGATE_CASCADE_BACKUP_TIMEOUT", "250ms")
	t.Setenv("FACEGATE_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FACEGATE_EMBEDDING_DIMENSION", "128")
	t.Setenv("FACEGATE_RISK_BLOCK_THRESHOLD", "0.9")
	t.Setenv("FACEGATE_REVIEW_TOKENS", "officer-7:abcdefghijklmnop,auditor:qrstuvwxyz012345")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Cascade.BackupTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.Equal(t, 0.9, cfg.Risk.BlockThreshold)
	assert.Equal(t, []string{"officer-7:abcdefghijklmnop", "auditor:qrstuvwxyz012345"}, cfg.Review.Tokens)
	// untouched nested values keep their defaults
	assert.Equal(t, 0.15, cfg.Cascade.Weights.Liveness)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"unknown log format":          {"FACEGATE_LOG_FORMAT", "xml"},
		"short signing key":           {"FACEGATE_AUTH_JWT_SIGNING_KEY", "short"},
		"alert above block threshold": {"FACEGATE_RISK_ALERT_THRESHOLD", "0.95"},
		"fusion weights off one":      {"FACEGATE_CASCADE_WEIGHTS_BACKUP", "0.5"},
		"inverted embedding bands":    {"FACEGATE_EMBEDDING_HIGH", "0.5"},
		"short reviewer token":        {"FACEGATE_REVIEW_TOKENS", "officer-7:short"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}
