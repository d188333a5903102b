package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "DINEBOT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Realtime     RealtimeConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DINEBOT_APP_ENV" required:"true"`
	Port         string `envconfig:"DINEBOT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DINEBOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DINEBOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DINEBOT_DB_DSN"`
	Driver string `envconfig:"DINEBOT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DINEBOT_DB_HOST"`
	Port     int    `envconfig:"DINEBOT_DB_PORT" default:"5432"`
	User     string `envconfig:"DINEBOT_DB_USER"`
	Password string `envconfig:"DINEBOT_DB_PASSWORD"`
	Name     string `envconfig:"DINEBOT_DB_NAME"`
	SSLMode  string `envconfig:"DINEBOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DINEBOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DINEBOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DINEBOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DINEBOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database config requires DSN or host/user/name")
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	query := dsn.Query()
	query.Set("sslmode", d.SSLMode)
	dsn.RawQuery = query.Encode()
	d.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"DINEBOT_REDIS_URL"`
	Address      string        `envconfig:"DINEBOT_REDIS_ADDR"`
	Password     string        `envconfig:"DINEBOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"DINEBOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DINEBOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DINEBOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DINEBOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DINEBOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DINEBOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig governs hot-tier retention and the expiry sweeper cadence.
type SessionConfig struct {
	IdleThreshold time.Duration `envconfig:"DINEBOT_SESSION_IDLE_THRESHOLD" default:"24h"`
	SweepInterval time.Duration `envconfig:"DINEBOT_SESSION_SWEEP_INTERVAL" default:"1h"`
	CartCacheTTL  time.Duration `envconfig:"DINEBOT_SESSION_CART_CACHE_TTL" default:"30m"`
	DedupTTL      time.Duration `envconfig:"DINEBOT_SESSION_DEDUP_TTL" default:"10m"`
}

// RealtimeConfig tunes the websocket transport on both ends.
type RealtimeConfig struct {
	ReconnectBackoff time.Duration `envconfig:"DINEBOT_REALTIME_RECONNECT_BACKOFF" default:"3s"`
	FallbackGrace    time.Duration `envconfig:"DINEBOT_REALTIME_FALLBACK_GRACE" default:"100ms"`
	WriteTimeout     time.Duration `envconfig:"DINEBOT_REALTIME_WRITE_TIMEOUT" default:"10s"`
	PongTimeout      time.Duration `envconfig:"DINEBOT_REALTIME_PONG_TIMEOUT" default:"60s"`
	PingInterval     time.Duration `envconfig:"DINEBOT_REALTIME_PING_INTERVAL" default:"30s"`
	MaxMessageBytes  int64         `envconfig:"DINEBOT_REALTIME_MAX_MESSAGE_BYTES" default:"65536"`
	AllowedOrigins   []string      `envconfig:"DINEBOT_REALTIME_ALLOWED_ORIGINS"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DINEBOT_AUTO_MIGRATE" default:"false"`
}
