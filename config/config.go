package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data source drivers
const (
	DataSourceREST     = "rest"
	DataSourcePostgres = "postgres"
	DataSourceMemory   = "memory"
)

// Local cache drivers
const (
	CacheDriverSQLite = "sqlite"
	CacheDriverRedis  = "redis"
	CacheDriverMemory = "memory"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Remote        RemoteConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Listing       ListingConfig
	Session       SessionConfig
	Breaker       BreakerConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
}

// RemoteConfig points at the hosted auth/database service
type RemoteConfig struct {
	URL            string
	AnonKey        string
	JWTSecret      string // Optional: verify access tokens locally when set
	DataSource     string
	MemorySeedFile string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	URL           string
	MaxConns      int32
	MinConns      int32
	CACertPath    string
	TLSServerName string
}

type CacheConfig struct {
	Driver     string
	SQLitePath string
	RedisURL   string
	KeyPrefix  string
	Duration   time.Duration
}

type ListingConfig struct {
	MaxAttempts     int
	TimeoutBase     time.Duration
	TimeoutStep     time.Duration
	BackoffStep     time.Duration
	RevalidateAfter time.Duration
	DefaultPageSize int
}

type SessionConfig struct {
	SafetyTimeout      time.Duration
	ProfileMaxAttempts int
	ProfileTimeoutBase time.Duration
	ProfileTimeoutStep time.Duration
	ProfileBackoffStep time.Duration
	TokenRefreshMargin time.Duration
}

type BreakerConfig struct {
	Enabled     bool
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint  string
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", "8090")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "")

	v.SetDefault("DATA_SOURCE", DataSourceREST)
	v.SetDefault("REMOTE_REQUEST_TIMEOUT_MS", 30000)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	v.SetDefault("CACHE_DRIVER", CacheDriverSQLite)
	v.SetDefault("CACHE_SQLITE_PATH", "data/local-cache.db")
	v.SetDefault("CACHE_KEY_PREFIX", "calificaprofe:")
	v.SetDefault("CACHE_DURATION_SECONDS", 3600) // 1 hour

	v.SetDefault("LISTING_MAX_ATTEMPTS", 4)
	v.SetDefault("LISTING_TIMEOUT_BASE_MS", 5000)
	v.SetDefault("LISTING_TIMEOUT_STEP_MS", 5000)
	v.SetDefault("LISTING_BACKOFF_STEP_MS", 2000)
	v.SetDefault("LISTING_REVALIDATE_AFTER_MS", 2500)
	v.SetDefault("LISTING_DEFAULT_PAGE_SIZE", 12)

	v.SetDefault("SESSION_SAFETY_TIMEOUT_MS", 5000)
	v.SetDefault("PROFILE_MAX_ATTEMPTS", 3)
	v.SetDefault("PROFILE_TIMEOUT_BASE_MS", 3000)
	v.SetDefault("PROFILE_TIMEOUT_STEP_MS", 2000)
	v.SetDefault("PROFILE_BACKOFF_STEP_MS", 1000)
	v.SetDefault("TOKEN_REFRESH_MARGIN_SECONDS", 60)

	v.SetDefault("BREAKER_ENABLED", true)
	v.SetDefault("BREAKER_MAX_REQUESTS", 3)
	v.SetDefault("BREAKER_INTERVAL_SECONDS", 60)
	v.SetDefault("BREAKER_TIMEOUT_SECONDS", 30)

	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "")
	v.SetDefault("O11Y_SERVICE_NAME", "calificaprofe-api")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "calificaprofe")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")
	v.SetDefault("O11Y_PROFILING_ENABLED", false)
	v.SetDefault("O11Y_PROFILING_SAMPLE_TYPES", "cpu,alloc_space,goroutines,block")
	v.SetDefault("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS", 15)
}

func fromViper(v *viper.Viper) *Config {
	millis := func(key string) time.Duration { return time.Duration(v.GetInt(key)) * time.Millisecond }
	seconds := func(key string) time.Duration { return time.Duration(v.GetInt(key)) * time.Second }

	return &Config{
		Server: ServerConfig{
			Host:           v.GetString("HOST"),
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_CORS_ORIGINS")),
		},
		Remote: RemoteConfig{
			URL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
			AnonKey:        v.GetString("SUPABASE_ANON_KEY"),
			JWTSecret:      v.GetString("SUPABASE_JWT_SECRET"),
			DataSource:     strings.ToLower(v.GetString("DATA_SOURCE")),
			MemorySeedFile: v.GetString("MEMORY_SEED_FILE"),
			RequestTimeout: millis("REMOTE_REQUEST_TIMEOUT_MS"),
		},
		Database: DatabaseConfig{
			URL:           v.GetString("DATABASE_URL"),
			MaxConns:      v.GetInt32("DB_MAX_CONNS"),
			MinConns:      v.GetInt32("DB_MIN_CONNS"),
			CACertPath:    v.GetString("DATABASE_CA_CERT"),
			TLSServerName: v.GetString("DATABASE_TLS_SERVER_NAME"),
		},
		Cache: CacheConfig{
			Driver:     strings.ToLower(v.GetString("CACHE_DRIVER")),
			SQLitePath: v.GetString("CACHE_SQLITE_PATH"),
			RedisURL:   v.GetString("REDIS_URL"),
			KeyPrefix:  v.GetString("CACHE_KEY_PREFIX"),
			Duration:   seconds("CACHE_DURATION_SECONDS"),
		},
		Listing: ListingConfig{
			MaxAttempts:     v.GetInt("LISTING_MAX_ATTEMPTS"),
			TimeoutBase:     millis("LISTING_TIMEOUT_BASE_MS"),
			TimeoutStep:     millis("LISTING_TIMEOUT_STEP_MS"),
			BackoffStep:     millis("LISTING_BACKOFF_STEP_MS"),
			RevalidateAfter: millis("LISTING_REVALIDATE_AFTER_MS"),
			DefaultPageSize: v.GetInt("LISTING_DEFAULT_PAGE_SIZE"),
		},
		Session: SessionConfig{
			SafetyTimeout:      millis("SESSION_SAFETY_TIMEOUT_MS"),
			ProfileMaxAttempts: v.GetInt("PROFILE_MAX_ATTEMPTS"),
			ProfileTimeoutBase: millis("PROFILE_TIMEOUT_BASE_MS"),
			ProfileTimeoutStep: millis("PROFILE_TIMEOUT_STEP_MS"),
			ProfileBackoffStep: millis("PROFILE_BACKOFF_STEP_MS"),
			TokenRefreshMargin: seconds("TOKEN_REFRESH_MARGIN_SECONDS"),
		},
		Breaker: BreakerConfig{
			Enabled:     v.GetBool("BREAKER_ENABLED"),
			MaxRequests: v.GetUint32("BREAKER_MAX_REQUESTS"),
			Interval:    seconds("BREAKER_INTERVAL_SECONDS"),
			Timeout:     seconds("BREAKER_TIMEOUT_SECONDS"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint:  v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:       v.GetString("O11Y_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_SERVICE_VERSION"),
			ServiceInstanceID: v.GetString("SERVICE_INSTANCE_ID"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("O11Y_PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
	}
}

// splitList parses a comma-separated value, dropping blanks
func splitList(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Session events always come from the hosted auth API, whatever the data source
	if c.Remote.URL == "" || c.Remote.AnonKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	switch c.Remote.DataSource {
	case DataSourceREST:
	case DataSourcePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres data source")
		}
	case DataSourceMemory:
		if c.Remote.MemorySeedFile == "" {
			return fmt.Errorf("MEMORY_SEED_FILE is required for the memory data source")
		}
	default:
		return fmt.Errorf("unsupported DATA_SOURCE %q", c.Remote.DataSource)
	}

	switch c.Cache.Driver {
	case CacheDriverSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("CACHE_SQLITE_PATH is required for the sqlite cache driver")
		}
	case CacheDriverRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache driver")
		}
	case CacheDriverMemory:
	default:
		return fmt.Errorf("unsupported CACHE_DRIVER %q", c.Cache.Driver)
	}

	if c.Cache.Duration <= 0 {
		return fmt.Errorf("CACHE_DURATION_SECONDS must be positive")
	}
	if c.Listing.MaxAttempts < 1 {
		return fmt.Errorf("LISTING_MAX_ATTEMPTS must be at least 1")
	}
	if c.Session.ProfileMaxAttempts < 1 {
		return fmt.Errorf("PROFILE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Listing.DefaultPageSize < 1 {
		return fmt.Errorf("LISTING_DEFAULT_PAGE_SIZE must be at least 1")
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("O11Y_PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}
