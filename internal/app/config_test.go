package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StorePostgres, cfg.UserStore)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	assert.True(t, cfg.RequireActive)
	assert.False(t, cfg.ConcealResetEmail)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.IsProduction())

	assert.Equal(t, int32(10), cfg.PoolOptions().MaxConns)
	assert.Equal(t, time.Hour, cfg.PoolOptions().MaxConnLifetime)

	ac := cfg.AuthConfig()
	assert.Equal(t, []byte("s3cret"), ac.SigningKey)
	assert.Equal(t, "crm-auth", ac.Issuer)
	assert.Equal(t, 10, ac.HashCost)
	assert.Equal(t, 15*time.Minute, ac.ResetTokenTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("USER_STORE", "memory")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("RESET_TOKEN_TTL", "5m")
	t.Setenv("AUTH_REQUIRE_ACTIVE", "false")
	t.Setenv("RESET_CONCEAL_UNKNOWN_EMAIL", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "csecret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StoreMemory, cfg.UserStore)
	assert.True(t, cfg.ConcealResetEmail)
	assert.True(t, cfg.GoogleEnabled())

	ac := cfg.AuthConfig()
	assert.Equal(t, 12, ac.HashCost)
	assert.Equal(t, 5*time.Minute, ac.ResetTokenTTL)
	assert.False(t, ac.RequireActive)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"empty secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown store", map[string]string{"JWT_SECRET": "k", "USER_STORE": "mongo"}},
		{"zero reset ttl", map[string]string{"JWT_SECRET": "k", "RESET_TOKEN_TTL": "0s"}},
		{"bad duration", map[string]string{"JWT_SECRET": "k", "TOKEN_TTL": "tomorrow"}},
		{"bcrypt cost too low", map[string]string{"JWT_SECRET": "k", "BCRYPT_COST": "3"}},
		{"bcrypt cost too high", map[string]string{"JWT_SECRET": "k", "BCRYPT_COST": "32"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
