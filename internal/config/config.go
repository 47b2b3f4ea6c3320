package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	PresenceCacheTTL time.Duration `mapstructure:"PRESENCE_CACHE_TTL"`
	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	WSSendBuffer     int           `mapstructure:"WS_SEND_BUFFER"`
	WSPingInterval   time.Duration `mapstructure:"WS_PING_INTERVAL"`
	WSPongWait       time.Duration `mapstructure:"WS_PONG_WAIT"`
	WSWriteWait      time.Duration `mapstructure:"WS_WRITE_WAIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("PRESENCE_CACHE_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("WS_PING_INTERVAL", "30s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_WRITE_WAIT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
		"REDIS_URL", "PRESENCE_CACHE_TTL", "JWT_SIGNING_KEY", "AUTH_ISSUER",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"WS_SEND_BUFFER", "WS_PING_INTERVAL", "WS_PONG_WAIT", "WS_WRITE_WAIT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// LogWarnings reports unsafe settings that Validate still accepts.
func (c *Config) LogWarnings(logger zerolog.Logger) {
	if c.IsDev() {
		logger.Warn().Str("env", c.Env).Msg("running in development mode: requests without a bearer token are accepted with X-Subject-* headers")
	}
	if c.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set: presence reads go to postgres")
	}
}

// Validate checks that the configuration is safe to run. Outside development a
// signing key is required so that subject tokens are actually verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.WSPongWait <= 0 || c.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL and WS_PONG_WAIT must be positive")
	}
	if c.WSPingInterval >= c.WSPongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", c.WSPingInterval, c.WSPongWait)
	}
	return nil
}
