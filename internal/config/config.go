package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/pkg/kv"
)

type Config struct {
	Env      string `mapstructure:"FARM_ENV"`
	HTTPAddr string `mapstructure:"FARM_HTTP_ADDR"`

	Store    StoreConfig    `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Farm     FarmConfig     `mapstructure:",squash"`
	Jobs     JobsConfig     `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"FARM_KV_BACKEND"`
	RedisURL string `mapstructure:"FARM_REDIS_URL"`
}

type DBConfig struct {
	// PostgresDSN enables the event journal when set.
	PostgresDSN string `mapstructure:"FARM_POSTGRES_DSN"`
}

type FarmConfig struct {
	AdminAddress   string `mapstructure:"FARM_ADMIN_ADDRESS"`
	RewardDecimals int32  `mapstructure:"FARM_REWARD_DECIMALS"`
	GenesisPath    string `mapstructure:"FARM_GENESIS_PATH"`
	DevFaucet      bool   `mapstructure:"FARM_DEV_FAUCET"`

	// Admin is AdminAddress in canonical form, set by Load.
	Admin farm.Address
}

type JobsConfig struct {
	SnapshotInterval time.Duration `mapstructure:"FARM_SNAPSHOT_INTERVAL"`
}

type SecurityConfig struct {
	JWTSecret          string   `mapstructure:"FARM_JWT_SECRET"`
	RateLimitRPM       int      `mapstructure:"FARM_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"FARM_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("FARM_ENV", "dev")
	v.SetDefault("FARM_HTTP_ADDR", ":8080")
	v.SetDefault("FARM_KV_BACKEND", string(kv.BackendMemory))
	v.SetDefault("FARM_REDIS_URL", "")
	v.SetDefault("FARM_POSTGRES_DSN", "")
	v.SetDefault("FARM_JWT_SECRET", "")
	v.SetDefault("FARM_ADMIN_ADDRESS", "")
	v.SetDefault("FARM_REWARD_DECIMALS", 9)
	v.SetDefault("FARM_GENESIS_PATH", "")
	v.SetDefault("FARM_DEV_FAUCET", false)
	v.SetDefault("FARM_SNAPSHOT_INTERVAL", "15s")
	v.SetDefault("FARM_RATE_LIMIT_RPM", 120)
	v.SetDefault("FARM_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("FARM_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("FARM_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid FARM_ENV %q (must be dev, test, or prod)", c.Env)
	}

	switch kv.Backend(c.Store.Backend) {
	case kv.BackendMemory:
	case kv.BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("FARM_REDIS_URL is required when FARM_KV_BACKEND is redis")
		}
	default:
		return fmt.Errorf("invalid FARM_KV_BACKEND %q (must be memory or redis)", c.Store.Backend)
	}

	if c.Farm.AdminAddress == "" {
		return fmt.Errorf("FARM_ADMIN_ADDRESS is required")
	}
	admin, err := farm.ParseAddress(c.Farm.AdminAddress)
	if err != nil {
		return fmt.Errorf("FARM_ADMIN_ADDRESS: %w", err)
	}
	c.Farm.Admin = admin

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("FARM_JWT_SECRET is required")
	}
	if c.IsProd() {
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("FARM_JWT_SECRET must be at least 32 bytes in prod")
		}
		if c.Farm.DevFaucet {
			return fmt.Errorf("FARM_DEV_FAUCET cannot be enabled in prod")
		}
	}

	if c.Farm.RewardDecimals < 0 || c.Farm.RewardDecimals > 36 {
		return fmt.Errorf("FARM_REWARD_DECIMALS out of range: %d", c.Farm.RewardDecimals)
	}
	if c.Jobs.SnapshotInterval <= 0 {
		return fmt.Errorf("FARM_SNAPSHOT_INTERVAL must be positive")
	}
	if c.Security.RateLimitRPM <= 0 {
		return fmt.Errorf("FARM_RATE_LIMIT_RPM must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// KV returns the settings for the farm state store.
func (c *Config) KV() kv.Config {
	return kv.Config{
		Backend:  kv.Backend(c.Store.Backend),
		RedisURL: c.Store.RedisURL,
	}
}
