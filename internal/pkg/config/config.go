package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Environment
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Server Configuration
	ServerHost string `mapstructure:"SERVER_HOST"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	Database  DatabaseConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Geocoding GeocodingConfig
	Storage   StorageConfig
	Sources   SourcesConfig

	// Reference data and validation policy
	ReferenceDataPath string `mapstructure:"REFERENCE_DATA_PATH"`
	StrictProvinces   bool   `mapstructure:"VALIDATION_STRICT_PROVINCES"`
	DedupeStrategy    string `mapstructure:"DEDUPE_STRATEGY"`

	// File Processing
	MaxFileSize int64 `mapstructure:"MAX_FILE_SIZE_MB"`
}

// DatabaseConfig selects the catalog store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig configures the Redis geocode cache.
type CacheConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int
	GeocodeTTL   time.Duration
}

// QueueConfig configures the asynq client and worker used for background loads.
type QueueConfig struct {
	Enabled        bool
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int
	ReadTimeout    int
	WriteTimeout   int
	Concurrency    int
	StrictPriority bool
	MaxRetries     int
}

type GeocodingConfig struct {
	Enabled   bool
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
}

type StorageConfig struct {
	BasePath  string
	Retention time.Duration // zero keeps uploads forever
}

// SourcesConfig holds the default file per region, used when a load names no upload.
type SourcesConfig struct {
	CVPath  string
	GALPath string
	CATPath string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using environment variables only")
		}
	}

	return FromViper(viper.New())
}

// FromViper reads the configuration from an already prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	config := &Config{
		Environment:       v.GetString("ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		ServerHost:        v.GetString("SERVER_HOST"),
		ServerPort:        v.GetString("SERVER_PORT"),
		ReferenceDataPath: v.GetString("REFERENCE_DATA_PATH"),
		StrictProvinces:   v.GetBool("VALIDATION_STRICT_PROVINCES"),
		DedupeStrategy:    v.GetString("DEDUPE_STRATEGY"),
		MaxFileSize:       v.GetInt64("MAX_FILE_SIZE_MB"),
	}

	config.Database = DatabaseConfig{
		Driver:          v.GetString("DB_DRIVER"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Database:        v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSLMODE"),
		Path:            v.GetString("DB_PATH"),
		LogLevel:        v.GetString("DB_LOG_LEVEL"),
		MaxConnections:  v.GetInt("DB_MAX_CONNECTIONS"),
		MinConnections:  v.GetInt("DB_MIN_CONNECTIONS"),
		MaxConnLifetime: v.GetInt("DB_MAX_CONN_LIFETIME_MIN"),
		MaxConnIdleTime: v.GetInt("DB_MAX_CONN_IDLE_MIN"),
	}

	config.Cache = CacheConfig{
		Enabled:      v.GetBool("CACHE_ENABLED"),
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		DialTimeout:  v.GetInt("REDIS_DIAL_TIMEOUT"),
		ReadTimeout:  v.GetInt("REDIS_READ_TIMEOUT"),
		WriteTimeout: v.GetInt("REDIS_WRITE_TIMEOUT"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		GeocodeTTL:   v.GetDuration("GEOCODE_CACHE_TTL"),
	}

	config.Queue = QueueConfig{
		Enabled:        v.GetBool("QUEUE_ENABLED"),
		RedisHost:      config.Cache.Host,
		RedisPort:      config.Cache.Port,
		RedisPassword:  config.Cache.Password,
		RedisDB:        v.GetInt("QUEUE_REDIS_DB"),
		DialTimeout:    config.Cache.DialTimeout,
		ReadTimeout:    config.Cache.ReadTimeout,
		WriteTimeout:   config.Cache.WriteTimeout,
		Concurrency:    v.GetInt("WORKER_CONCURRENCY"),
		StrictPriority: v.GetBool("WORKER_STRICT_PRIORITY"),
		MaxRetries:     v.GetInt("WORKER_MAX_RETRIES"),
	}

	config.Geocoding = GeocodingConfig{
		Enabled:   v.GetBool("GEOCODE_ENABLED"),
		BaseURL:   v.GetString("GEOCODE_BASE_URL"),
		UserAgent: v.GetString("GEOCODE_USER_AGENT"),
		Timeout:   v.GetDuration("GEOCODE_TIMEOUT"),
		Delay:     v.GetDuration("GEOCODE_DELAY"),
	}

	config.Storage = StorageConfig{
		BasePath:  v.GetString("STORAGE_PATH"),
		Retention: v.GetDuration("STORAGE_RETENTION"),
	}

	config.Sources = SourcesConfig{
		CVPath:  v.GetString("SOURCE_CV_PATH"),
		GALPath: v.GetString("SOURCE_GAL_PATH"),
		CATPath: v.GetString("SOURCE_CAT_PATH"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")

	// Database defaults
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "itv")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "itv.db")
	v.SetDefault("DB_LOG_LEVEL", "silent")
	v.SetDefault("DB_MAX_CONNECTIONS", 10)
	v.SetDefault("DB_MIN_CONNECTIONS", 2)
	v.SetDefault("DB_MAX_CONN_LIFETIME_MIN", 30)
	v.SetDefault("DB_MAX_CONN_IDLE_MIN", 5)

	// Redis defaults
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5)
	v.SetDefault("REDIS_READ_TIMEOUT", 3)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 1)
	v.SetDefault("GEOCODE_CACHE_TTL", "720h")

	// Worker defaults
	v.SetDefault("QUEUE_ENABLED", false)
	v.SetDefault("QUEUE_REDIS_DB", 1)
	v.SetDefault("WORKER_CONCURRENCY", 3)
	v.SetDefault("WORKER_STRICT_PRIORITY", false)
	v.SetDefault("WORKER_MAX_RETRIES", 3)

	// Geocoding defaults
	v.SetDefault("GEOCODE_ENABLED", false)
	v.SetDefault("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODE_USER_AGENT", "itv-catalog-service/1.0")
	v.SetDefault("GEOCODE_TIMEOUT", "10s")
	v.SetDefault("GEOCODE_DELAY", "1s")

	v.SetDefault("STORAGE_PATH", "/tmp/itv-sources")
	v.SetDefault("STORAGE_RETENTION", "0s")
	v.SetDefault("VALIDATION_STRICT_PROVINCES", false)
	v.SetDefault("DEDUPE_STRATEGY", "exact")
	v.SetDefault("MAX_FILE_SIZE_MB", 50)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.DedupeStrategy {
	case "exact", "normalized":
	default:
		return fmt.Errorf("unsupported DEDUPE_STRATEGY %q", c.DedupeStrategy)
	}
	if c.Geocoding.Delay < 0 {
		return fmt.Errorf("GEOCODE_DELAY must not be negative")
	}
	return nil
}

// SourcePath returns the configured default file for a region code.
func (c *Config) SourcePath(region string) string {
	switch region {
	case "cv":
		return c.Sources.CVPath
	case "gal":
		return c.Sources.GALPath
	case "cat":
		return c.Sources.CATPath
	}
	return ""
}

// GetDatabaseURL constructs the PostgreSQL connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// GetRedisURL constructs the Redis address
func (c *CacheConfig) GetRedisURL() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig() {
	log.Printf("Configuration loaded:")
	log.Printf("  Environment: %s", c.Environment)
	log.Printf("  Server: %s", c.ListenAddr())
	if c.Database.Driver == "postgres" {
		log.Printf("  Database: postgres %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Database)
	} else {
		log.Printf("  Database: sqlite %s", c.Database.Path)
	}
	log.Printf("  Redis cache: %t (%s, DB: %d)", c.Cache.Enabled, c.Cache.GetRedisURL(), c.Cache.DB)
	log.Printf("  Queue: %t (concurrency %d)", c.Queue.Enabled, c.Queue.Concurrency)
	log.Printf("  Geocoding: %t (%s, delay %s)", c.Geocoding.Enabled, c.Geocoding.BaseURL, c.Geocoding.Delay)
	if c.ReferenceDataPath != "" {
		log.Printf("  Reference data: %s", c.ReferenceDataPath)
	} else {
		log.Printf("  Reference data: [EMBEDDED]")
	}

	if c.Database.Password != "" {
		log.Printf("  DB Password: [CONFIGURED]")
	}
}
