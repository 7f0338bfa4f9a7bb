package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg := FromViper(v)

	assert.Equal(t, "6383", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 120, cfg.Login.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Login.PollInterval)
	assert.Equal(t, 5, cfg.Login.RateLimitQPS)
	assert.Equal(t, 15*time.Second, cfg.Delta.HTTPTimeout)
	assert.Equal(t, "0 0 3 * * *", cfg.Cron.CredentialRefreshSpec)
	assert.Empty(t, cfg.Log.Dir)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("DB_DRIVER", "sqlite")
	v.Set("LOGIN_MAX_ATTEMPTS", 30)
	v.Set("LOGIN_POLL_INTERVAL", "1s")
	v.Set("LOGIN_RATE_LIMIT_QPS", 2)
	v.Set("ADMIN_TOKEN", "secret")

	cfg := FromViper(v)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Login.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Login.PollInterval)
	assert.Equal(t, 2, cfg.Login.RateLimitQPS)
	assert.Equal(t, "secret", cfg.Security.AdminToken)
}
