package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	JWT         JWTConfig
	Login       LoginConfig
	Cache       CacheConfig
	Credentials CredentialsConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	LogLevel      string
	LoginRateSpec string // ulule/limiter format, e.g. "20-M"; empty disables
}

// IsDevelopment reports whether the server runs with development defaults
// (console logging, relaxed security headers).
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "" || s.Env == "development"
}

type StoreConfig struct {
	Backend        string // sqlite | redis
	DatabasePath   string
	RedisURL       string
	LocalCachePath string // empty keeps the local cache in memory
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type LoginConfig struct {
	MaxAttempts        int
	ConfigPath         string
	RemoteWriteTimeout time.Duration
	RemoteLoadTimeout  time.Duration
}

type CacheConfig struct {
	MaxSize          int
	DefaultTTL       time.Duration
	SweepInterval    time.Duration
	PressureInterval time.Duration
	HighWaterMark    float64
	MemoryProbe      bool // only reports usage when GOMEMLIMIT is set
}

type CredentialsConfig struct {
	Path         string
	FallbackFile string // seeds a missing directory; used alone while the store is down
	CacheTTL     time.Duration
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8008")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_LOGIN", "20-M")

	v.SetDefault("STORE_BACKEND", BackendSQLite)
	v.SetDefault("DATABASE_PATH", "mom-admin.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOCAL_CACHE_PATH", "")

	v.SetDefault("JWT_SECRET", "development-insecure-secret-change-me")
	v.SetDefault("JWT_ISSUER", "mom-admin-api")
	v.SetDefault("JWT_AUDIENCE", "mom-admin-dashboard")
	v.SetDefault("JWT_TTL", 8*time.Hour)

	v.SetDefault("LOGIN_MAX_ATTEMPTS", 10)
	v.SetDefault("LOGIN_CONFIG_PATH", "config/login")
	v.SetDefault("LOGIN_REMOTE_WRITE_TIMEOUT", 2*time.Second)
	v.SetDefault("LOGIN_REMOTE_LOAD_TIMEOUT", 3*time.Second)

	v.SetDefault("CACHE_MAX_SIZE", 50)
	v.SetDefault("CACHE_DEFAULT_TTL", 5*time.Minute)
	v.SetDefault("CACHE_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("CACHE_PRESSURE_INTERVAL", 30*time.Second)
	v.SetDefault("CACHE_HIGH_WATER_MARK", 0.8)
	v.SetDefault("CACHE_MEMORY_PROBE", true)

	v.SetDefault("CREDENTIALS_PATH", "config/credentials")
	v.SetDefault("CREDENTIALS_FALLBACK_FILE", "")
	v.SetDefault("CREDENTIALS_CACHE_TTL", 5*time.Minute)
}

// Load reads configuration from the environment and, when CONFIG_FILE is set,
// from that file. Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if p := v.GetString("CONFIG_FILE"); p != "" {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:          v.GetString("PORT"),
			Env:           strings.ToLower(v.GetString("APP_ENV")),
			LogLevel:      strings.ToLower(v.GetString("LOG_LEVEL")),
			LoginRateSpec: v.GetString("RATE_LIMIT_LOGIN"),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(v.GetString("STORE_BACKEND")),
			DatabasePath:   v.GetString("DATABASE_PATH"),
			RedisURL:       v.GetString("REDIS_URL"),
			LocalCachePath: v.GetString("LOCAL_CACHE_PATH"),
		},
		JWT: JWTConfig{
			Secret:   v.GetString("JWT_SECRET"),
			Issuer:   v.GetString("JWT_ISSUER"),
			Audience: v.GetString("JWT_AUDIENCE"),
			TTL:      v.GetDuration("JWT_TTL"),
		},
		Login: LoginConfig{
			MaxAttempts:        v.GetInt("LOGIN_MAX_ATTEMPTS"),
			ConfigPath:         v.GetString("LOGIN_CONFIG_PATH"),
			RemoteWriteTimeout: v.GetDuration("LOGIN_REMOTE_WRITE_TIMEOUT"),
			RemoteLoadTimeout:  v.GetDuration("LOGIN_REMOTE_LOAD_TIMEOUT"),
		},
		Cache: CacheConfig{
			MaxSize:          v.GetInt("CACHE_MAX_SIZE"),
			DefaultTTL:       v.GetDuration("CACHE_DEFAULT_TTL"),
			SweepInterval:    v.GetDuration("CACHE_SWEEP_INTERVAL"),
			PressureInterval: v.GetDuration("CACHE_PRESSURE_INTERVAL"),
			HighWaterMark:    v.GetFloat64("CACHE_HIGH_WATER_MARK"),
			MemoryProbe:      v.GetBool("CACHE_MEMORY_PROBE"),
		},
		Credentials: CredentialsConfig{
			Path:         v.GetString("CREDENTIALS_PATH"),
			FallbackFile: v.GetString("CREDENTIALS_FALLBACK_FILE"),
			CacheTTL:     v.GetDuration("CREDENTIALS_CACHE_TTL"),
		},
	}
	cfg.normalize()
	return cfg
}

// normalize replaces out-of-range values with defaults instead of failing startup.
func (c *Config) normalize() {
	if c.Server.Port == "" {
		c.Server.Port = "8008"
	}
	if c.Store.Backend != BackendRedis {
		c.Store.Backend = BackendSQLite
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 8 * time.Hour
	}
	if c.Login.MaxAttempts <= 0 {
		c.Login.MaxAttempts = 10
	}
	if c.Login.ConfigPath == "" {
		c.Login.ConfigPath = "config/login"
	}
	if c.Login.RemoteWriteTimeout <= 0 {
		c.Login.RemoteWriteTimeout = 2 * time.Second
	}
	if c.Login.RemoteLoadTimeout <= 0 {
		c.Login.RemoteLoadTimeout = 3 * time.Second
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 50
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = 5 * time.Minute
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = time.Minute
	}
	if c.Cache.PressureInterval <= 0 {
		c.Cache.PressureInterval = 30 * time.Second
	}
	if c.Cache.HighWaterMark <= 0 || c.Cache.HighWaterMark >= 1 {
		c.Cache.HighWaterMark = 0.8
	}
	if c.Credentials.Path == "" {
		c.Credentials.Path = "config/credentials"
	}
	if c.Credentials.CacheTTL <= 0 {
		c.Credentials.CacheTTL = 5 * time.Minute
	}
}
