package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/attendance"
	"github.com/warp/schedule-engine/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Locking.TTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesAndExpandsEnv(t *testing.T) {
	// GIVEN: a file referencing environment variables
	t.Setenv("SCHEDULE_REDIS_ADDR", "localhost:6380")
	t.Setenv("SCHEDULE_REDIS_PASSWORD", "s3cret")
	path := writeConfig(t, `
server:
  port: 9090
  cors_origins: ["https://app.example.com"]
database:
  driver: memory
redis:
  enabled: true
  address: ${SCHEDULE_REDIS_ADDR}
  password: ${SCHEDULE_REDIS_PASSWORD}
locking:
  wait: 500ms
attendance:
  late_check_in_minutes: 10
  overtime_auto_approve_minutes: 20
  severities:
    late_check_in: 4
log:
  level: debug
`)

	// WHEN
	cfg, err := config.Load(path)

	// THEN: file values win, the rest keep defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "localhost:6380", cfg.Redis.Address)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 500*time.Millisecond, cfg.Locking.Wait)
	assert.Equal(t, 10*time.Second, cfg.Locking.TTL)

	assert.Equal(t, 10, cfg.Attendance.LateCheckInMinutes)
	assert.Equal(t, attendance.DefaultPolicy().MissingGraceMinutes, cfg.Attendance.MissingGraceMinutes)
	require.NotNil(t, cfg.Attendance.OvertimeAutoApproveMinutes)
	assert.Equal(t, 20, *cfg.Attendance.OvertimeAutoApproveMinutes)
	assert.Equal(t, 4, cfg.Attendance.Severity(attendance.LateCheckIn))

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"unknown driver", "database:\n  driver: postgres\n"},
		{"redis without address", "redis:\n  enabled: true\n"},
		{"zero lock wait", "locking:\n  wait: 0s\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"severity out of range", "attendance:\n  severities:\n    extended_break: 9\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
