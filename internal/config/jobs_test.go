package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobsConfigDefaults(t *testing.T) {
	cfg, err := LoadJobsConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "parking.tasks", cfg.Queue)
	assert.Equal(t, "18:00", cfg.Schedule.DailyReminder)
	assert.Equal(t, 1, cfg.Schedule.MonthlyReportDay)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadJobsConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue = "custom"
export_dir = "/tmp/out"

[schedule]
daily_reminder = "19:30"
monthly_report_day = 40

[smtp]
host = "mail.local"
port = 2525
from = "noreply@parking.local"
`), 0o600))
	t.Setenv("SMTP_PORT", "465")

	cfg, err := LoadJobsConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Queue)
	assert.Equal(t, "/tmp/out", cfg.ExportDir)
	assert.Equal(t, "19:30", cfg.Schedule.DailyReminder)
	assert.Equal(t, "08:00", cfg.Schedule.AdminReport)
	assert.Equal(t, 1, cfg.Schedule.MonthlyReportDay)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, "mail.local:465", cfg.SMTP.Addr())
}

func TestLoadJobsConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.toml")
	require.NoError(t, os.WriteFile(path, []byte("queue = ["), 0o600))
	_, err := LoadJobsConfig(path)
	assert.Error(t, err)
}

func TestLoadCacheConfigClampsTTL(t *testing.T) {
	t.Setenv("CACHE_TTL", "5s")
	assert.Equal(t, "1m0s", LoadCacheConfig().TTL.String())
	t.Setenv("CACHE_TTL", "1h")
	assert.Equal(t, "5m0s", LoadCacheConfig().TTL.String())
}
