package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Workflow.DefaultExpiration)
	assert.Equal(t, 720*time.Hour, cfg.Workflow.MaxExpiration)
	assert.Equal(t, 10, cfg.Workflow.MaxApprovers)
	assert.False(t, cfg.Workflow.RequireAllApprovers)
	assert.Equal(t, 30*time.Minute, cfg.Workflow.ExpirationSweepInterval)
	assert.Equal(t, 60*time.Minute, cfg.Workflow.ReminderSweepInterval)
	assert.Equal(t, 500, cfg.Workflow.SweepBatchSize)
	assert.Equal(t, 2160*time.Hour, cfg.Audit.ArchiveAfter)
	assert.Equal(t, 8760*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, 5, cfg.Audit.FailedLoginThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Audit.FailedLoginWindow)
	assert.Equal(t, 3, cfg.Audit.PermissionDeniedThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Audit.PermissionDeniedWindow)
	assert.Equal(t, "gatekeeper.notifications", cfg.Kafka.NotifyTopic)
	assert.True(t, cfg.InMemory())
	assert.False(t, cfg.KafkaEnabled())
	assert.True(t, cfg.DevSigningKey())
}

func TestParsePrefixedOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"WORKFLOW_REQUIRE_ALL_APPROVERS": "true",
		"WORKFLOW_MAX_APPROVERS":         "3",
		"NOTIFY_BUFFER_SIZE":             "64",
		"AUDIT_REPORT_TOP_N":             "5",
		"AUDIT_REPORT_MAX_RANGE":         "720h",
		"DATABASE_URL":                   "postgres://localhost/gatekeeper",
		"KAFKA_BROKERS":                  "localhost:9092",
	}})
	require.NoError(t, err)

	assert.True(t, cfg.Workflow.RequireAllApprovers)
	assert.Equal(t, 3, cfg.Workflow.MaxApprovers)
	assert.Equal(t, 64, cfg.Notify.BufferSize)
	assert.Equal(t, 5, cfg.Audit.ReportTopN)
	assert.Equal(t, 720*time.Hour, cfg.Audit.ReportMaxRange)
	assert.False(t, cfg.InMemory())
	assert.True(t, cfg.KafkaEnabled())
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"retention not after archival", map[string]string{"AUDIT_RETENTION": "720h", "AUDIT_ARCHIVE_AFTER": "2160h"}},
		{"max expiration below default", map[string]string{"WORKFLOW_MAX_EXPIRATION": "1h"}},
		{"zero approvers", map[string]string{"WORKFLOW_MAX_APPROVERS": "0"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"short signing key", map[string]string{"JWT_SIGNING_KEY": "short"}},
		{"malformed duration", map[string]string{"WORKFLOW_TX_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(env.Options{Environment: tt.env})
			require.Error(t, err)
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("WORKFLOW_SWEEP_BATCH_SIZE=42\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WORKFLOW_SWEEP_BATCH_SIZE") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Workflow.SweepBatchSize)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
