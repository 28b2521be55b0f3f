package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/pkg/httpx"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, time.Hour, cfg.AccessTTL)
	require.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RevokeTTL)
	require.False(t, cfg.GitHub.Enabled())
	require.Equal(t, httpx.DefaultRateLimits(), cfg.RateLimit.Limits())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SSO_PORT", "9090")
	t.Setenv("SSO_STORE_DRIVER", "postgres")
	t.Setenv("SSO_DATABASE_URL", "postgres://sso@localhost/sso")
	t.Setenv("SSO_ACCESS_TTL", "15m")
	t.Setenv("SSO_GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("SSO_GITHUB_SCOPES", "user:email,read:org")
	t.Setenv("SSO_RATE_LIMIT_STRICT", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.True(t, cfg.GitHub.Enabled())
	require.Equal(t, []string{"user:email", "read:org"}, cfg.GitHub.Scopes)
	require.True(t, cfg.RateLimit.Limits().Strict.Disabled())
	require.False(t, cfg.RateLimit.Limits().Moderate.Disabled())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mysql" }},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreDriver = DriverPostgres }},
		{name: "refresh shorter than access", mutate: func(c *Config) { c.RefreshTTL = time.Minute }},
		{name: "zero housekeeping", mutate: func(c *Config) { c.HousekeepingInterval = 0 }},
		{name: "oidc without issuer", mutate: func(c *Config) { c.OIDC.ClientID = "id" }},
		{name: "oidc with issuer", mutate: func(c *Config) {
			c.OIDC.ClientID = "id"
			c.OIDCIssuer = "https://issuer.test"
		}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}
