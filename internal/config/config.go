package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
}

// MongoConfig holds the document store settings. Uploads live in a GridFS
// bucket inside the same database.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Bucket         string        `yaml:"bucket"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AdminConfig is the shared credential guarding the admin surface.
// Leaving either field blank disables the surface.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether both credentials are set.
func (a AdminConfig) Enabled() bool {
	return strings.TrimSpace(a.Username) != "" && strings.TrimSpace(a.Password) != ""
}

// ReviewConfig configures reviewer share links.
type ReviewConfig struct {
	TokenSecret        string        `yaml:"token_secret"`
	DefaultShareTTL    time.Duration `yaml:"default_share_ttl"`
	MaxActiveShares    int           `yaml:"max_active_shares"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from an optional YAML file (CONFIG_FILE) and environment
// variables, the latter taking precedence. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string         `yaml:"app_host"`
	Port        string         `yaml:"port"`
	StoreDriver string         `yaml:"store_driver"`
	Log         LogConfig      `yaml:"log"`
	Admin       AdminConfig    `yaml:"admin"`
	Review      ReviewConfig   `yaml:"review"`
	Mongo       MongoConfig    `yaml:"mongo"`
	Database    DatabaseConfig `yaml:"database"`
	MinIO       MinIOConfig    `yaml:"minio"`
}

// Load reads configuration from the environment.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		AppHost:     "localhost:8080",
		Port:        "8080",
		StoreDriver: DriverMongo,
		Log:         LogConfig{Level: "info", Format: "json"},
		Review: ReviewConfig{
			DefaultShareTTL:    14 * 24 * time.Hour,
			MaxActiveShares:    25,
			RateLimitPerMinute: 60,
		},
		Mongo: MongoConfig{
			Bucket:         "grantUploads",
			ConnectTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Port:               "5432",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 300,
		},
		MinIO: MinIOConfig{Bucket: "grantuploads"},
	}
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(c *AppConfig) {
	c.AppHost = getEnv("APP_HOST", c.AppHost)
	c.Port = getEnv("PORT", c.Port)
	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Admin.Username = getEnv("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)

	c.Review.TokenSecret = getEnv("REVIEW_TOKEN_SECRET", c.Review.TokenSecret)
	c.Review.DefaultShareTTL = getEnvDuration("REVIEW_SHARE_TTL", c.Review.DefaultShareTTL)
	c.Review.MaxActiveShares = getEnvInt("REVIEW_MAX_ACTIVE_SHARES", c.Review.MaxActiveShares)
	c.Review.RateLimitPerMinute = getEnvInt("REVIEW_RATE_LIMIT", c.Review.RateLimitPerMinute)

	c.Mongo.URI = getEnv("MONGODB_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGODB_DB", c.Mongo.Database)
	c.Mongo.Bucket = getEnv("BLOB_BUCKET", c.Mongo.Bucket)
	c.Mongo.ConnectTimeout = getEnvDuration("MONGODB_CONNECT_TIMEOUT", c.Mongo.ConnectTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetimeSec = getEnvInt("DB_CONN_MAX_LIFETIME_SEC", c.Database.ConnMaxLifetimeSec)

	c.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIO.AccessKey)
	c.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", c.MinIO.SecretKey)
	c.MinIO.Bucket = getEnv("MINIO_BUCKET", c.MinIO.Bucket)
	c.MinIO.UseSSL = getEnvBool("MINIO_USE_SSL", c.MinIO.UseSSL)
}

// Validate reports misconfiguration that must stop the process: a missing
// review token secret or missing store settings for the selected driver.
// Missing admin credentials are not an error; they disable the admin surface.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Review.TokenSecret) == "" {
		errs = append(errs, errors.New("REVIEW_TOKEN_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required"))
		}
		if c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGODB_DB is required"))
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required"))
		}
		if c.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
