// Package config loads runtime startup configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 3000
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBName     = "shareloom"
	defaultDBCharset  = "utf8mb4"
	defaultRedisURL   = "redis://localhost:6379/0"
	defaultUploadsDir = "uploads"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	Database       DatabaseConfig `yaml:"database"`
	RedisURL       string         `yaml:"redis_url"`
	JWTSecret      string         `yaml:"jwt_secret"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	UploadsDir     string         `yaml:"uploads_dir"`
	S3             S3Options      `yaml:"s3"`
	Jobs           JobsConfig     `yaml:"jobs"`
	CacheTTL       time.Duration  `yaml:"cache_ttl"`
}

// DatabaseConfig describes the MySQL connection.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// S3Options configures the object storage backend.
type S3Options struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
	Prefix          string `yaml:"prefix"`
}

// JobsConfig tunes the background worker pool.
type JobsConfig struct {
	ImageWorkers int           `yaml:"image_workers"`
	PDFWorkers   int           `yaml:"pdf_workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// SyncUploads makes content creation upload inline instead of
	// enqueuing a job.
	SyncUploads bool `yaml:"sync_uploads"`
}

// Load reads, parses and normalizes the config file. A missing file yields
// pure defaults so local development works out of the box.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.Env == "" {
		c.Env = defaultEnv
	}
	if c.RedisURL == "" {
		c.RedisURL = defaultRedisURL
	}
	if c.UploadsDir == "" {
		c.UploadsDir = defaultUploadsDir
	}
	if c.Jobs.ImageWorkers <= 0 {
		c.Jobs.ImageWorkers = 2
	}
	if c.Jobs.PDFWorkers <= 0 {
		c.Jobs.PDFWorkers = 1
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Minute
	}

	d := &c.Database
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port <= 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Name == "" {
		d.Name = defaultDBName
	}
	if d.Charset == "" {
		d.Charset = defaultDBCharset
	}
}

// DSN returns the MySQL DSN, assembling it from discrete fields when the
// explicit form is absent.
func (c *AppConfig) DSN() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset,
	)
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }
