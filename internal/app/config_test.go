package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/admingate/admingate/internal/permissions"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 90*24*time.Hour, cfg.Auth.Token.TTL)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, 24*time.Hour, cfg.Maintenance.TokenGrace)
	require.Equal(t, "@daily", cfg.Maintenance.AuditSchedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)

	policy, err := cfg.GatePolicy()
	require.NoError(t, err)
	require.Equal(t, permissions.PolicyAllow, policy)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ADMINGATE_SERVER_PORT", "9001")
	t.Setenv("ADMINGATE_AUTH_DEFAULT_POLICY", "deny")
	t.Setenv("ADMINGATE_AUTH_TOKEN_TTL", "48h")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, 48*time.Hour, cfg.Auth.Token.TTL)

	policy, err := cfg.GatePolicy()
	require.NoError(t, err)
	require.Equal(t, permissions.PolicyDeny, policy)
}

func TestGatePolicyRejectsUnknownValue(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{DefaultPolicy: "maybe"}}
	_, err := cfg.GatePolicy()
	require.Error(t, err)
}

func TestDatabaseSettingsMapsDriverSections(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Driver: "postgres",
		Postgres: DBAuthConfig{
			Host:     "db.internal",
			Port:     5432,
			Database: "admingate",
			Username: "gate",
			Password: "secret",
		},
	}}

	settings := cfg.DatabaseSettings()
	require.Equal(t, "db.internal", settings.Host)
	require.Equal(t, 5432, settings.Port)
	require.Equal(t, "admingate", settings.Name)
	require.Equal(t, "gate", settings.User)
}
