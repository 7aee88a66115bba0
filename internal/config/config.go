// Package config loads gmerge settings: defaults, then an optional YAML
// file, then environment variables (with .env files loaded first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Delay bounds offered by the UIs, in seconds.
const (
	MinDelaySeconds  = 30
	MaxDelaySeconds  = 300
	DelayStepSeconds = 5
)

const (
	DefaultLabel      = "Mail Merge Sent"
	DefaultListen     = "127.0.0.1:8080"
	DefaultSessionTTL = 12 * time.Hour
)

type Config struct {
	Dir     string        `yaml:"-"`
	Gmail   GmailConfig   `yaml:"gmail"`
	Merge   MergeConfig   `yaml:"merge"`
	Backup  BackupConfig  `yaml:"backup"`
	Web     WebConfig     `yaml:"web"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

type GmailConfig struct {
	ClientSecretFile string `yaml:"client_secret_file"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	RedirectURL      string `yaml:"redirect_url"`
}

type MergeConfig struct {
	DelaySeconds int    `yaml:"delay_seconds"`
	Label        string `yaml:"label"`
	Mode         string `yaml:"mode"`
	Sender       string `yaml:"sender"`
}

type BackupConfig struct {
	Dir       string   `yaml:"dir"`
	EmailCopy bool     `yaml:"email_copy"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type WebConfig struct {
	Listen     string        `yaml:"listen"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	RedisAddr  string        `yaml:"redis_addr"`
	// SecureCookies marks session cookies Secure; enable behind HTTPS.
	SecureCookies bool `yaml:"secure_cookies"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`
}

// DefaultDir is ~/.config/gmerge.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "gmerge"), nil
}

// Load builds the configuration. path may be empty; when it is, dir's
// config.yaml is used if present. dir may be empty for DefaultDir.
func Load(dir, path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if dir == "" {
		if v := os.Getenv("GMERGE_CONFIG_DIR"); v != "" {
			dir = v
		} else {
			d, err := DefaultDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
	}

	cfg := &Config{Dir: dir}
	cfg.applyDefaults()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnvVars()
	cfg.Merge.DelaySeconds = ClampDelay(cfg.Merge.DelaySeconds)
	return cfg, nil
}

// loadDotEnv reads .env from the working directory if there is one.
// Variables already set in the environment win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Gmail.ClientSecretFile = filepath.Join(c.Dir, "client_secret.json")
	c.Merge.DelaySeconds = MinDelaySeconds
	c.Merge.Label = DefaultLabel
	c.Merge.Mode = "new"
	c.Web.Listen = DefaultListen
	c.Web.SessionTTL = DefaultSessionTTL
	c.Store.Path = filepath.Join(c.Dir, "gmerge.db")
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	c.Logging.File = filepath.Join(c.Dir, "gmerge.log")
}

func (c *Config) applyEnvVars() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("GMERGE_CLIENT_SECRET_FILE", &c.Gmail.ClientSecretFile)
	str("GMERGE_CLIENT_ID", &c.Gmail.ClientID)
	str("GMERGE_CLIENT_SECRET", &c.Gmail.ClientSecret)
	str("GMERGE_REDIRECT_URL", &c.Gmail.RedirectURL)

	if v := os.Getenv("GMERGE_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Merge.DelaySeconds = n
		}
	}
	str("GMERGE_LABEL", &c.Merge.Label)
	str("GMERGE_MODE", &c.Merge.Mode)
	str("GMERGE_SENDER", &c.Merge.Sender)

	str("GMERGE_BACKUP_DIR", &c.Backup.Dir)
	boolean("GMERGE_BACKUP_EMAIL_COPY", &c.Backup.EmailCopy)
	str("GMERGE_S3_BUCKET", &c.Backup.S3.Bucket)
	str("GMERGE_S3_REGION", &c.Backup.S3.Region)
	str("GMERGE_S3_ENDPOINT", &c.Backup.S3.Endpoint)
	boolean("GMERGE_S3_PATH_STYLE", &c.Backup.S3.PathStyle)
	str("GMERGE_S3_ACCESS_KEY", &c.Backup.S3.AccessKey)
	str("GMERGE_S3_SECRET_KEY", &c.Backup.S3.SecretKey)
	str("GMERGE_S3_PREFIX", &c.Backup.S3.Prefix)

	str("GMERGE_LISTEN", &c.Web.Listen)
	if v := os.Getenv("GMERGE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Web.SessionTTL = d
		}
	}
	str("GMERGE_REDIS_ADDR", &c.Web.RedisAddr)
	boolean("GMERGE_SECURE_COOKIES", &c.Web.SecureCookies)

	str("GMERGE_STORE_PATH", &c.Store.Path)

	if v := os.Getenv("GMERGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GMERGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	str("GMERGE_LOG_FILE", &c.Logging.File)
}

// S3Enabled reports whether backups go to object storage.
func (c *Config) S3Enabled() bool {
	return c.Backup.S3.Bucket != ""
}

// Delay returns the configured pause between messages.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Merge.DelaySeconds) * time.Second
}

// ClampDelay bounds seconds to [30, 300] and rounds to the nearest 5.
func ClampDelay(seconds int) int {
	if seconds < MinDelaySeconds {
		return MinDelaySeconds
	}
	if seconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	r := seconds % DelayStepSeconds
	if r*2 >= DelayStepSeconds {
		return seconds - r + DelayStepSeconds
	}
	return seconds - r
}
