package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/pkg/kv"
)

var adminHex = "0x" + strings.Repeat("0a", 32)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FARM_ENV", "dev")
	t.Setenv("FARM_ADMIN_ADDRESS", adminHex)
	t.Setenv("FARM_JWT_SECRET", "dev-secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, string(kv.BackendMemory), cfg.Store.Backend)
	assert.Equal(t, farm.Address(adminHex), cfg.Farm.Admin)
	assert.Equal(t, int32(9), cfg.Farm.RewardDecimals)
	assert.Equal(t, 15*time.Second, cfg.Jobs.SnapshotInterval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Security.CORSAllowedOrigins)
	assert.Empty(t, cfg.Database.PostgresDSN)
	assert.True(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FARM_KV_BACKEND", "redis")
	t.Setenv("FARM_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("FARM_SNAPSHOT_INTERVAL", "1m")
	t.Setenv("FARM_DEV_FAUCET", "true")
	t.Setenv("FARM_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, kv.BackendRedis, cfg.KV().Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.KV().RedisURL)
	assert.Equal(t, time.Minute, cfg.Jobs.SnapshotInterval)
	assert.True(t, cfg.Farm.DevFaucet)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad env", map[string]string{"FARM_ENV": "staging"}, "FARM_ENV"},
		{"redis without url", map[string]string{"FARM_KV_BACKEND": "redis"}, "FARM_REDIS_URL"},
		{"unknown backend", map[string]string{"FARM_KV_BACKEND": "etcd"}, "FARM_KV_BACKEND"},
		{"bad admin", map[string]string{"FARM_ADMIN_ADDRESS": "alice"}, "FARM_ADMIN_ADDRESS"},
		{"missing secret", map[string]string{"FARM_JWT_SECRET": ""}, "FARM_JWT_SECRET"},
		{"short prod secret", map[string]string{"FARM_ENV": "prod"}, "at least 32 bytes"},
		{"faucet in prod", map[string]string{
			"FARM_ENV":        "prod",
			"FARM_JWT_SECRET": strings.Repeat("s", 32),
			"FARM_DEV_FAUCET": "true",
		}, "FARM_DEV_FAUCET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
