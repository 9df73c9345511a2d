package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Log     LogConfig
	Server  ServerConfig
	Store   StoreConfig
	MongoDB MongoDBConfig
	Local   LocalConfig
	Redis   RedisConfig
	Sheets  SheetsConfig
	Sync    SyncConfig
	Engine  EngineConfig
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StoreConfig selects the remote authoritative store.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// LocalConfig points at the durable local cache.
type LocalConfig struct {
	CachePath string
}

// RedisConfig holds the optional preference store. Empty URL keeps prefs in SQLite.
type RedisConfig struct {
	URL     string
	PrefTTL time.Duration
}

// SheetsConfig contains configuration required to import the catalog from Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether sheet import is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// SyncConfig holds scheduler-related settings.
type SyncConfig struct {
	CatalogSchedule   string
	ReconcileSchedule string
	RemoteTimeout     time.Duration
}

// EngineConfig tunes the counting engine.
type EngineConfig struct {
	DedupWindow          time.Duration
	PersistDebounce      time.Duration
	DefaultWarehouseName string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	var errs []error
	duration := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(getenvWithDefault(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Store: StoreConfig{
			Driver: getenvWithDefault("STORE_DRIVER", StoreDriverMongo),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockcount"),
		},
		Local: LocalConfig{
			CachePath: getenvWithDefault("LOCAL_CACHE_PATH", "stockcount.db"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			PrefTTL: duration("REDIS_PREF_TTL", "720h"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Sync: SyncConfig{
			CatalogSchedule:   getenvWithDefault("CATALOG_SYNC_SCHEDULE", "@every 15m"),
			ReconcileSchedule: getenvWithDefault("RECONCILE_SCHEDULE", "@every 30s"),
			RemoteTimeout:     duration("REMOTE_TIMEOUT", "10s"),
		},
		Engine: EngineConfig{
			DedupWindow:          duration("SCAN_DEDUP_WINDOW", "800ms"),
			PersistDebounce:      duration("PERSIST_DEBOUNCE", "500ms"),
			DefaultWarehouseName: getenvWithDefault("DEFAULT_WAREHOUSE_NAME", "Main warehouse"),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case StoreDriverMongo:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverMongo, StoreDriverMemory, c.Store.Driver)
	}

	if c.Local.CachePath == "" {
		return errors.New("LOCAL_CACHE_PATH must not be empty")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	switch {
	case c.Sync.CatalogSchedule == "":
		return errors.New("CATALOG_SYNC_SCHEDULE must be provided")
	case c.Sync.ReconcileSchedule == "":
		return errors.New("RECONCILE_SCHEDULE must be provided")
	case c.Sync.RemoteTimeout <= 0:
		return errors.New("REMOTE_TIMEOUT must be positive")
	}

	if c.Engine.DedupWindow <= 0 {
		return errors.New("SCAN_DEDUP_WINDOW must be positive")
	}

	if c.Engine.PersistDebounce <= 0 {
		return errors.New("PERSIST_DEBOUNCE must be positive")
	}

	if c.Engine.DefaultWarehouseName == "" {
		c.Engine.DefaultWarehouseName = "Main warehouse"
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
