package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/spf13/viper"
)

// Mirror backends
const (
	MirrorSQLite = "sqlite"
	MirrorRedis  = "redis"
	MirrorMemory = "memory"
)

// Permission sources
const (
	PermissionsStatic = "static"
	PermissionsRemote = "remote"
)

// Config holds all client configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	API       APIConfig
	Storage   StorageConfig
	Mirror    MirrorConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Offline   OfflineConfig
	Sync      SyncConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name      string
	Env       string
	KeyPrefix string // prefix of every persisted cache key
	Tenant    string // overrides the tenant carried in the API token
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// APIConfig holds the remote ERP API settings
type APIConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	Token      string
	UserAgent  string
	MaxRetries int // retries of idempotent reads only
}

// StorageConfig holds the local sqlite database settings
type StorageConfig struct {
	Path string
}

// MirrorConfig selects where cache snapshots are persisted
type MirrorConfig struct {
	Backend      string // sqlite, redis, memory
	WriteTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// CacheConfig holds entity cache settings
type CacheConfig struct {
	TTL time.Duration
}

// OfflineConfig holds offline permissions and where they come from
type OfflineConfig struct {
	Permissions     offline.OfflinePermissions
	Source          string // static, remote
	RefreshInterval time.Duration
	SettingsPath    string
	InitialOnline   bool
}

// SyncConfig holds pending change replay settings
type SyncConfig struct {
	ReplayRate   float64 // replays per second, 0 = unlimited
	ReplayBurst  int
	FlushTimeout time.Duration
}

// HTTPConfig holds local API server configuration
type HTTPConfig struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	MetricsEnabled    bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_API_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or searches the default
// locations when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.erp-client")
	}

	// false is meaningful for the permission flags, so they cannot rely on applyDefaults
	perms := offline.DefaultOfflinePermissions()
	v.SetDefault("offline.enabled", perms.Enabled)
	v.SetDefault("offline.can_create", perms.CanCreate)
	v.SetDefault("offline.can_edit", perms.CanEdit)
	v.SetDefault("offline.can_delete", perms.CanDelete)
	v.SetDefault("offline.show_indicator", perms.ShowIndicator)
	v.SetDefault("offline.auto_sync", perms.AutoSync)
	v.SetDefault("offline.initial_online", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:      v.GetString("app.name"),
			Env:       v.GetString("app.env"),
			KeyPrefix: v.GetString("app.key_prefix"),
			Tenant:    v.GetString("app.tenant"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		API: APIConfig{
			BaseURL:    v.GetString("api.base_url"),
			APIVersion: v.GetString("api.api_version"),
			Timeout:    v.GetDuration("api.timeout"),
			Token:      v.GetString("api.token"),
			UserAgent:  v.GetString("api.user_agent"),
			MaxRetries: v.GetInt("api.max_retries"),
		},
		Storage: StorageConfig{
			Path: v.GetString("storage.path"),
		},
		Mirror: MirrorConfig{
			Backend:      v.GetString("mirror.backend"),
			WriteTimeout: v.GetDuration("mirror.write_timeout"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Cache: CacheConfig{
			TTL: v.GetDuration("cache.ttl"),
		},
		Offline: OfflineConfig{
			Permissions: offline.OfflinePermissions{
				Version:           v.GetInt("offline.version"),
				Enabled:           v.GetBool("offline.enabled"),
				CanCreate:         v.GetBool("offline.can_create"),
				CanEdit:           v.GetBool("offline.can_edit"),
				CanDelete:         v.GetBool("offline.can_delete"),
				ShowIndicator:     v.GetBool("offline.show_indicator"),
				AutoSync:          v.GetBool("offline.auto_sync"),
				MaxPendingChanges: v.GetInt("offline.max_pending_changes"),
			},
			Source:          v.GetString("offline.source"),
			RefreshInterval: v.GetDuration("offline.refresh_interval"),
			SettingsPath:    v.GetString("offline.settings_path"),
			InitialOnline:   v.GetBool("offline.initial_online"),
		},
		Sync: SyncConfig{
			ReplayRate:   v.GetFloat64("sync.replay_rate"),
			ReplayBurst:  v.GetInt("sync.replay_burst"),
			FlushTimeout: v.GetDuration("sync.flush_timeout"),
		},
		HTTP: HTTPConfig{
			Addr:             v.GetString("http.addr"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-client"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.KeyPrefix == "" {
		cfg.App.KeyPrefix = "erp_offline"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.API.APIVersion == "" {
		cfg.API.APIVersion = "v1"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "erp-client/1.0"
	}
	if cfg.API.MaxRetries == 0 {
		cfg.API.MaxRetries = 2
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "erp-client.db"
	}
	if cfg.Mirror.Backend == "" {
		cfg.Mirror.Backend = MirrorSQLite
	}
	if cfg.Mirror.WriteTimeout == 0 {
		cfg.Mirror.WriteTimeout = 5 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "erp:client:"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Offline.Permissions.Version == 0 {
		cfg.Offline.Permissions.Version = offline.PermissionsVersion
	}
	if cfg.Offline.Permissions.MaxPendingChanges == 0 {
		cfg.Offline.Permissions.MaxPendingChanges = offline.DefaultMaxPendingChanges
	}
	if cfg.Offline.Source == "" {
		cfg.Offline.Source = PermissionsStatic
	}
	if cfg.Offline.RefreshInterval == 0 {
		cfg.Offline.RefreshInterval = 5 * time.Minute
	}
	if cfg.Offline.SettingsPath == "" {
		cfg.Offline.SettingsPath = "/settings/offline"
	}
	if cfg.Sync.ReplayBurst == 0 {
		cfg.Sync.ReplayBurst = 1
	}
	if cfg.Sync.FlushTimeout == 0 {
		cfg.Sync.FlushTimeout = 2 * time.Minute
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8765"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// WriteTimeout stays zero unless configured: the SSE stream is long lived
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "erp-client"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries cannot be negative")
	}

	switch c.Mirror.Backend {
	case MirrorSQLite, MirrorRedis, MirrorMemory:
	default:
		return fmt.Errorf("mirror.backend must be one of sqlite, redis, memory, got %q", c.Mirror.Backend)
	}

	switch c.Offline.Source {
	case PermissionsStatic, PermissionsRemote:
	default:
		return fmt.Errorf("offline.source must be static or remote, got %q", c.Offline.Source)
	}
	if c.Offline.Permissions.MaxPendingChanges < 0 {
		return fmt.Errorf("offline.max_pending_changes cannot be negative")
	}
	if c.Offline.Permissions.Version != offline.PermissionsVersion {
		return fmt.Errorf("offline.version %d is not supported", c.Offline.Permissions.Version)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}
	if c.Sync.ReplayRate < 0 {
		return fmt.Errorf("sync.replay_rate cannot be negative")
	}
	if c.Sync.ReplayBurst < 0 {
		return fmt.Errorf("sync.replay_burst cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.API.Token == "" {
			return fmt.Errorf("api.token is required in production")
		}
		if u.Scheme != "https" {
			return fmt.Errorf("api.base_url must use https in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// Endpoint returns the versioned API root, e.g. http://host/api/v1
func (a *APIConfig) Endpoint() string {
	return strings.TrimRight(a.BaseURL, "/") + "/api/" + a.APIVersion
}

// Addr returns host:port of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DSN returns the sqlite connection string with the pragmas the stores rely on
func (s *StorageConfig) DSN() string {
	if s.Path == ":memory:" {
		return s.Path
	}
	return "file:" + s.Path + "?_journal_mode=WAL&_busy_timeout=5000"
}
